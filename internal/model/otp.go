package model

import "time"

// OTP purposes. Verification is scoped to the purpose the code was issued
// for; a LOGIN code cannot be redeemed on the REGISTRATION path.
const (
	OTPPurposeLogin        = "LOGIN"
	OTPPurposeRegistration = "REGISTRATION"
)

// OTPTTL is how long an issued code stays redeemable.
const OTPTTL = 10 * time.Minute

// OTPVerification mirrors the `otp_verifications` table. Rows are
// append-only: verification stamps VerifiedAt exactly once and the row is
// never touched again. Concurrent sends for the same mobile simply stack
// rows; matching always picks the most recent candidate.
type OTPVerification struct {
	ID           uint64     // otp_verifications.id
	MobileNumber string     // otp_verifications.mobile_number, E.164
	Code         string     // otp_verifications.code, 6 digits zero-padded
	Purpose      string     // otp_verifications.purpose
	ExpiresAt    time.Time  // otp_verifications.expires_at (created+10m)
	VerifiedAt   *time.Time // otp_verifications.verified_at (null until used)
	CreatedAt    time.Time  // otp_verifications.created_at
}
