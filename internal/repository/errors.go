// Package repository implements persistence for the auth subsystem over
// database/sql. Sentinel errors defined here let handlers translate failure
// scenarios into HTTP responses without inspecting driver errors.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist or is not
// visible to the caller's scope. Handlers translate this into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail and ErrDuplicateMobile surface unique-constraint
// violations on the users table. Handlers translate these into HTTP 409.
var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrDuplicateMobile = errors.New("mobile number already registered")
)

// ErrInvalidState is returned when a state transition is attempted from a
// status that does not allow it (e.g. revoking an ACCEPTED invitation).
var ErrInvalidState = errors.New("invalid state for operation")

// ErrInvalidRefresh is returned when a presented refresh token has no live
// ledger row (rotated out, expired, or never issued).
var ErrInvalidRefresh = errors.New("invalid refresh token")

// OTP verification outcomes. The tiers exist for user-facing messaging:
// "request a code first" vs "code expired" vs "code already used" vs plain
// mismatch.
var (
	ErrOTPNotRequested = errors.New("no otp requested for this number")
	ErrOTPExpired      = errors.New("otp expired")
	ErrOTPAlreadyUsed  = errors.New("otp already used")
	ErrOTPMismatch     = errors.New("otp code mismatch")
)

// isDuplicate reports whether err is a unique-constraint violation. MySQL
// reports error 1062; sqlite (used in tests) reports "UNIQUE constraint
// failed".
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint")
}
