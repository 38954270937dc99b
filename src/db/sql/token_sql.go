package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenStore keeps refresh and password reset tokens. Only SHA-256 hashes of
// the tokens are stored.
type TokenStore struct {
	pool *pgxpool.Pool
}

func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// CreateRefreshToken stores a new refresh token and revokes every other
// token of the user, so that one session is active per user.
func (s *TokenStore) CreateRefreshToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := revokeAll(ctx, tx, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
			userID, hash, expiresAt)
		return translate(err)
	})
}

// RotateRefreshToken revokes the presented token and stores its
// replacement. It returns the owner of the token, or models.ErrNotFound when
// the token is unknown, revoked or expired.
func (s *TokenStore) RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt time.Time) (int64, error) {
	var userID int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE refresh_tokens
			   SET revoked_at = NOW()
			 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
			RETURNING user_id`, oldHash).Scan(&userID)
		if err != nil {
			return translate(err)
		}
		if err := revokeAll(ctx, tx, userID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
			userID, newHash, expiresAt)
		return translate(err)
	})
	return userID, err
}

// RevokeRefreshToken revokes one token. Unknown tokens are ignored.
func (s *TokenStore) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`, hash)
	return err
}

func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	return revokeAll(ctx, s.pool, userID)
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func revokeAll(ctx context.Context, db execer, userID int64) error {
	_, err := db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// CreateResetToken stores a reset token, invalidating earlier unused ones.
func (s *TokenStore) CreateResetToken(ctx context.Context, userID int64, hash string, expiresAt time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE password_reset_tokens SET used_at = NOW() WHERE user_id = $1 AND used_at IS NULL`, userID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
			userID, hash, expiresAt)
		return translate(err)
	})
}

// ResetPassword consumes a reset token, stores the new password hash and
// revokes every refresh token of the user, atomically.
func (s *TokenStore) ResetPassword(ctx context.Context, hash, passwordHash string) (int64, error) {
	var userID int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE password_reset_tokens
			   SET used_at = NOW()
			 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > NOW()
			RETURNING user_id`, hash).Scan(&userID)
		if err != nil {
			return translate(err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
		if err != nil {
			return err
		}
		return revokeAll(ctx, tx, userID)
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
