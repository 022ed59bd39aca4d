package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bptrack/bptrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) queryable {
	if c := db.QuerierFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `id, email, hashed_password, is_active, is_superuser, is_verified,
	otp, otp_expiration, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.IsVerified,
		&u.OTP, &u.OTPExpiration, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, email, hashed_password, is_active, is_superuser, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.HashedPassword, u.IsActive, u.IsSuperuser, u.IsVerified,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) SetOTP(ctx context.Context, id uuid.UUID, otp string, expiresAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET otp = $2, otp_expiration = $3, updated_at = NOW()
		WHERE id = $1`, id, otp, expiresAt)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) ConsumeOTP(ctx context.Context, id uuid.UUID, otp string, now time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET is_verified = TRUE, otp = NULL, otp_expiration = NULL, updated_at = NOW()
		WHERE id = $1 AND otp = $2 AND otp_expiration >= $3`, id, otp, now)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidOTP
	}
	return nil
}

func (r *userRepoPG) MarkVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET is_verified = TRUE, otp = NULL, otp_expiration = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET email = $2, hashed_password = $3, is_verified = $4,
			otp = $5, otp_expiration = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Email, u.HashedPassword, u.IsVerified, u.OTP, u.OTPExpiration,
	).Scan(&u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrUserExists
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
