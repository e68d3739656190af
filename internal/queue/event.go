// Package queue defines message payloads exchanged over the message broker.
package queue

// AuthEvent is published for every audit-worthy auth action (logins,
// OTP verifications, invitation transitions). It carries enough for
// downstream consumers to log or alert without querying the primary
// database.
type AuthEvent struct {
	Action     string  `json:"action"`
	UserID     *uint64 `json:"user_id,omitempty"`
	Mobile     string  `json:"mobile,omitempty"`
	Email      string  `json:"email,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}
