package domain

import "time"

// Session es el blob cacheado tras un login exitoso. Nunca es fuente de verdad.
type Session struct {
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	IssuedAt      time.Time `json:"issuedAt"`
}

func NewSession(user User, issuedAt time.Time) Session {
	return Session{
		UserID:        user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		EmailVerified: user.EmailVerified(),
		IssuedAt:      issuedAt.UTC(),
	}
}
