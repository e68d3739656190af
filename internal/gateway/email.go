package gateway

import (
	"context"
	"log"
)

// EmailGateway delivers an HTML email.
type EmailGateway interface {
	Send(ctx context.Context, to, subject, html string) error
}

// LogEmailGateway writes the email to the server log instead of a real
// provider.
type LogEmailGateway struct{}

func (LogEmailGateway) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("email: to=%s subject=%q", to, subject)
	return nil
}
