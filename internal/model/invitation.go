package model

import "time"

// Invitation statuses. PENDING is the only state a token can be accepted,
// resent or revoked from; ACCEPTED and REVOKED are terminal; EXPIRED is
// stamped by the retention job on stale PENDING rows (time-based expiry is
// enforced on read regardless).
const (
	InvitationPending  = "PENDING"
	InvitationAccepted = "ACCEPTED"
	InvitationRevoked  = "REVOKED"
	InvitationExpired  = "EXPIRED"
)

// InvitationTTL is the acceptance window for a freshly issued (or resent)
// invitation token.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation mirrors the `invitations` table. Token is a 32-byte random
// value hex-encoded (64 chars); resending rotates it, so the mailed link is
// the only place the current token lives.
type Invitation struct {
	ID          uint64     // invitations.id
	Email       string     // invitations.email (target inbox)
	Token       string     // invitations.token, 64 hex chars
	Role        string     // invitations.role (DOCTOR | HOSPITAL_ADMIN)
	HospitalID  *uint64    // invitations.hospital_id
	Permissions *string    // invitations.permissions, JSON blob
	InvitedBy   uint64     // invitations.invited_by (users.id)
	Status      string     // invitations.status
	ExpiresAt   time.Time  // invitations.expires_at (created+7d)
	AcceptedAt  *time.Time // invitations.accepted_at
	CreatedAt   time.Time  // invitations.created_at
	UpdatedAt   time.Time  // invitations.updated_at
}

// Acceptable reports whether the invitation can still be redeemed.
func (i *Invitation) Acceptable(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
