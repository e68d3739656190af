package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

var otpSpace = big.NewInt(1000000)

// GenerateOTP returns a uniformly random 6-digit code, zero-padded
// ("000000".."999999"). crypto/rand keeps codes unpredictable; rand.Int is
// already modulo-unbiased.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NewInvitationToken returns a 32-byte random token hex-encoded (64 chars).
// The token is opaque: its only power comes from matching the stored row.
func NewInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
