package model

import "time"

// Audit actions recorded by the auth flows.
const (
	AuditUserRegister       = "USER_REGISTER"
	AuditOTPVerified        = "OTP_VERIFIED"
	AuditUserSetupCompleted = "USER_SETUP_COMPLETED"
	AuditUserLogin          = "USER_LOGIN"
	AuditLoginFailed        = "LOGIN_FAILED"
	AuditUserLogout         = "USER_LOGOUT"
	AuditInvitationCreated  = "INVITATION_CREATED"
	AuditInvitationAccepted = "INVITATION_ACCEPTED"
	AuditInvitationRevoked  = "INVITATION_REVOKED"
)

// AuditEvent mirrors the `audit_events` table. UserID is nullable because
// failed logins may not resolve to an account.
type AuditEvent struct {
	ID        uint64    // audit_events.id
	UserID    *uint64   // audit_events.user_id
	Action    string    // audit_events.action
	Detail    string    // audit_events.detail (free-form, e.g. identifier used)
	CreatedAt time.Time // audit_events.created_at
}
