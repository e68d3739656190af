package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// TokenRepo is the rotation ledger for refresh tokens. Rows are keyed by the
// token's jti so a presented token is located in O(1) and then verified
// against its stored SHA-256 hash; the plaintext never touches the table.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// Store inserts a ledger row for a freshly issued refresh token.
func (r *TokenRepo) Store(ctx context.Context, t model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)",
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, time.Now().UTC())
	return err
}

// StoreTx is Store inside an existing transaction (invitation accept).
func (r *TokenRepo) StoreTx(ctx context.Context, tx *sql.Tx, t model.RefreshToken) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)",
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, time.Now().UTC())
	return err
}

// Rotate atomically retires the ledger row identified by jti and records its
// replacement. The delete and insert share one transaction so a crash can
// never strand a session with neither token valid. ErrInvalidRefresh covers
// every rejection: unknown jti, hash mismatch, expired row, wrong owner.
func (r *TokenRepo) Rotate(ctx context.Context, jti, presentedHash string, userID uint64, next model.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := lookupTx(ctx, tx, jti)
	if err != nil {
		return err
	}
	if old.UserID != userID || !hashEqual(old.TokenHash, presentedHash) {
		return ErrInvalidRefresh
	}
	if !time.Now().UTC().Before(old.ExpiresAt) {
		return ErrInvalidRefresh
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id=?", jti); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)",
		next.ID, next.UserID, next.TokenHash, next.ExpiresAt, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes the ledger row for a presented token if it matches.
// Returns true when a row was actually removed; logout treats a miss as
// success (idempotent).
func (r *TokenRepo) Delete(ctx context.Context, jti, presentedHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE id=? AND token_hash=?", jti, presentedHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteAllForUser removes every live session for a user (admin action,
// password reset).
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	return err
}

// DeleteExpired prunes ledger rows past their expiry (retention job).
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func lookupTx(ctx context.Context, tx *sql.Tx, jti string) (model.RefreshToken, error) {
	var t model.RefreshToken
	err := tx.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE id=? LIMIT 1", jti).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, ErrInvalidRefresh
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	return t, nil
}

// hashEqual compares two hex digests in constant time.
func hashEqual(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
