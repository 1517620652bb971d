package domain

import "time"

// User es el registro de credenciales. El core solo lee y escribe los campos
// de password, verificacion de email y OTP.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"displayName,omitempty"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	OtpCodeHash     string     `json:"-"`
	OtpExpiresAt    *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (u User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// HasActiveOTP reporta si hay un OTP cargado. Hash y expiracion van siempre juntos.
func (u User) HasActiveOTP() bool {
	return u.OtpCodeHash != "" && u.OtpExpiresAt != nil
}
