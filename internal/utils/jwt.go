package utils // package utils provides token, password and phone helpers shared by handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the single failure returned by token verification.
// Malformed, expired and badly signed tokens are deliberately not
// distinguishable by the caller.
var ErrInvalidToken = errors.New("invalid token")

// Token classes carried in the "cls" claim so an access token can never be
// presented on the refresh path and vice versa.
const (
	classAccess  = "access"
	classRefresh = "refresh"
)

// TokenPayload is the identity encoded into every signed token.
type TokenPayload struct {
	UserID   uint64
	UserType string
	Mobile   string
}

// SignedToken bundles a serialized JWT with its id and expiry. JTI is only
// set for refresh tokens; it doubles as the primary key of the persisted
// rotation-ledger row so a presented token can be located without scanning.
type SignedToken struct {
	Token string
	JTI   string
	Exp   time.Time
}

// NewAccessToken builds and signs a short-lived HS256 JWT for a user.
// Claims: sub (user id), typ (role), mob (mobile number), cls, iat, exp.
func NewAccessToken(secret string, p TokenPayload, ttlMin int) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub": p.UserID,
		"typ": p.UserType,
		"mob": p.Mobile,
		"cls": classAccess,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken builds and signs the long-lived counterpart. The uuid jti
// identifies the stored ledger row; the signature alone never proves a
// refresh token is still live — rotation is enforced against the stored hash.
func NewRefreshToken(secret string, p TokenPayload, ttlDays int) (SignedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub": p.UserID,
		"typ": p.UserType,
		"mob": p.Mobile,
		"cls": classRefresh,
		"jti": jti,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, JTI: jti, Exp: exp}, nil
}

// VerifyAccessToken validates signature and expiry of an access token and
// returns its payload. Stateless: no store access, no revocation check.
func VerifyAccessToken(secret, raw string) (TokenPayload, error) {
	p, _, err := verify(secret, raw, classAccess)
	return p, err
}

// VerifyRefreshToken validates a refresh token and returns its payload and
// jti. Callers must still match the token against the persisted hash ledger;
// a signed-but-rotated-out token verifies here and must be rejected there.
func VerifyRefreshToken(secret, raw string) (TokenPayload, string, error) {
	return verify(secret, raw, classRefresh)
}

func verify(secret, raw, wantClass string) (TokenPayload, string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return TokenPayload{}, "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return TokenPayload{}, "", ErrInvalidToken
	}
	if cls, _ := claims["cls"].(string); cls != wantClass {
		return TokenPayload{}, "", ErrInvalidToken
	}
	var p TokenPayload
	switch sub := claims["sub"].(type) {
	case float64:
		p.UserID = uint64(sub)
	case string:
		n, convErr := strconv.ParseUint(sub, 10, 64)
		if convErr != nil {
			return TokenPayload{}, "", ErrInvalidToken
		}
		p.UserID = n
	default:
		return TokenPayload{}, "", ErrInvalidToken
	}
	p.UserType, _ = claims["typ"].(string)
	p.Mobile, _ = claims["mob"].(string)
	jti, _ := claims["jti"].(string)
	return p, jti, nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Only this digest
// is persisted, so a leaked ledger row cannot be replayed as a live session.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
