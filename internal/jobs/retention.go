// Package jobs hosts background maintenance loops.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/arohealth/hospital-auth/internal/repository"
)

// RetentionConfig tunes the cleanup sweep. OTP and refresh-token rows past
// their window are deleted after a grace period; stale PENDING invitations
// are flipped to EXPIRED. Expiry is always enforced on read, so the sweep
// only bounds table growth.
type RetentionConfig struct {
	Interval time.Duration
	Grace    time.Duration
}

// StartRetentionSweeper launches the periodic cleanup goroutine. It stops
// when ctx is cancelled.
func StartRetentionSweeper(ctx context.Context, cfg RetentionConfig,
	otps *repository.OTPRepo, tokens *repository.TokenRepo, invitations *repository.InvitationRepo) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	grace := cfg.Grace
	if grace < 0 {
		grace = 0
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				sweep(tickCtx, now, grace, otps, tokens, invitations)
				cancel()
			}
		}
	}()
}

func sweep(ctx context.Context, now time.Time, grace time.Duration,
	otps *repository.OTPRepo, tokens *repository.TokenRepo, invitations *repository.InvitationRepo) {
	cutoff := now.Add(-grace)
	if n, err := otps.DeleteExpired(ctx, cutoff); err != nil {
		log.Printf("retention: otp sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("retention: deleted %d expired otp rows", n)
	}
	if n, err := tokens.DeleteExpired(ctx, cutoff); err != nil {
		log.Printf("retention: refresh token sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("retention: deleted %d expired refresh tokens", n)
	}
	if n, err := invitations.ExpireStale(ctx, now); err != nil {
		log.Printf("retention: invitation sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("retention: expired %d stale invitations", n)
	}
}
