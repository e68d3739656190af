// Package gateway defines the contracts for the external SMS and email
// collaborators. The auth flows treat both as best-effort: a dispatch
// failure is logged and never rolls back an already-committed state change.
package gateway

import (
	"context"
	"log"
)

// SMSGateway delivers a text message to a mobile number.
type SMSGateway interface {
	Send(ctx context.Context, mobile, message string) error
}

// LogSMSGateway writes the message to the server log instead of a real
// provider. Used in dev and tests; production wires a provider-backed
// implementation behind the same interface.
type LogSMSGateway struct{}

func (LogSMSGateway) Send(_ context.Context, mobile, message string) error {
	log.Printf("sms: to=%s body=%q", mobile, message)
	return nil
}
