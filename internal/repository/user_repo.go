package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"authcore/internal/domain"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrEmailTaken = errors.New("email already registered")
)

const uniqueViolation = "23505"

// UserRepository define el contrato de persistencia para credenciales.
// Cada metodo de escritura toca una sola fila en una sola sentencia.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// UpdateOTP escribe hash y expiracion juntos.
	UpdateOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error
	// ClearOTP borra el OTP. Con expectedHash no vacio solo borra si sigue
	// siendo el mismo; devuelve false si otra escritura gano.
	ClearOTP(ctx context.Context, id, expectedHash string) (bool, error)
	MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, display_name, password_hash, email_verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.EmailVerifiedAt,
		user.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

const selectUser = `
	SELECT id, email, display_name, password_hash, email_verified_at, otp_code_hash, otp_expires_at, created_at
	FROM users
`

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanOne(ctx, selectUser+`WHERE id = $1`, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanOne(ctx, selectUser+`WHERE email = $1`, email)
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u           domain.User
		displayName *string
		otpHash     *string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&displayName,
		&u.PasswordHash,
		&u.EmailVerifiedAt,
		&otpHash,
		&u.OtpExpiresAt,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if displayName != nil {
		u.DisplayName = *displayName
	}
	if otpHash != nil {
		u.OtpCodeHash = *otpHash
	}
	if u.OtpCodeHash == "" || u.OtpExpiresAt == nil {
		u.OtpCodeHash = ""
		u.OtpExpiresAt = nil
	}
	return u, nil
}

func (r *PgUserRepository) UpdateOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users
		SET otp_code_hash = $2, otp_expires_at = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, otpHash, expiresAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) ClearOTP(ctx context.Context, id, expectedHash string) (bool, error) {
	query, args := clearOTPQuery(id, expectedHash)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// clearOTPQuery arma el UPDATE de ClearOTP. El filtro por hash es lo que
// hace que dos verificaciones concurrentes no consuman el mismo codigo.
func clearOTPQuery(id, expectedHash string) (string, []any) {
	query := `
		UPDATE users
		SET otp_code_hash = NULL, otp_expires_at = NULL
		WHERE id = $1`
	args := []any{id}
	if expectedHash != "" {
		query += ` AND otp_code_hash = $2`
		args = append(args, expectedHash)
	}
	return query, args
}

func (r *PgUserRepository) MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	const query = `
		UPDATE users
		SET email_verified_at = COALESCE(email_verified_at, $2)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, verifiedAt.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
