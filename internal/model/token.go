package model

import "time"

// RefreshTokenTTL is the lifetime of the long-lived session credential.
const RefreshTokenTTL = 30 * 24 * time.Hour

// RefreshToken mirrors the `refresh_tokens` table — the rotation ledger for
// signed refresh tokens. ID is the token's jti claim, so a presented token
// is located by id and then verified against the stored SHA-256 hash; the
// plaintext is never persisted.
type RefreshToken struct {
	ID        string    // refresh_tokens.id (jti, uuid)
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash, sha256 hex
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}
