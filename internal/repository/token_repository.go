package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists refresh tokens (single 'token_hash' column) and
// implements the conditional writes the token lifecycle depends on.
// Rotation serializes per token on the guarded revoke inside one
// transaction: of N concurrent rotations of the same hash, exactly one
// observes RowsAffected == 1 and commits a replacement row.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// Rotate atomically revokes the old token and inserts its replacement,
// returning the owning user id. Error cases:
//   - unknown or expired hash: ErrTokenInvalid
//   - already-revoked hash (replay), or losing a concurrent rotation
//     race on the same hash: ErrTokenReused, with the owner id still
//     returned so the caller can apply its reuse policy.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1 FOR UPDATE",
		oldHash).Scan(&userID, &expiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid {
		return userID, ErrTokenReused
	}
	if time.Now().UTC().After(expiresAt) {
		return userID, ErrTokenInvalid
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		oldHash)
	if err != nil {
		return userID, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return userID, err
	}
	if n == 0 {
		return userID, ErrTokenReused
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, newHash, exp); err != nil {
		return userID, err
	}
	if err := tx.Commit(); err != nil {
		return userID, err
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked. Idempotent: revoking an
// unknown or already-revoked hash is not an error.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}
