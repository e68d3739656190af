package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// OTPRepo persists one-time codes in the `otp_verifications` table. Rows are
// append-only; consumption stamps verified_at exactly once.
type OTPRepo struct{ db *sql.DB }

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{db: db} }

// Create inserts a fresh code row. Concurrent issues for the same mobile do
// not block each other; each call appends an independent row and Consume
// always matches the newest candidate.
func (r *OTPRepo) Create(ctx context.Context, o *model.OTPVerification) error {
	o.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_verifications (mobile_number, code, purpose, expires_at, created_at)
		 VALUES (?,?,?,?,?)`,
		o.MobileNumber, o.Code, o.Purpose, o.ExpiresAt, o.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// Consume redeems a code for the given mobile and purpose. It is single-use:
// the first successful call stamps verified_at, every later call fails. The
// tiered failures mirror what the client messaging needs:
//
//	ErrOTPNotRequested — no code was ever issued for (mobile, purpose)
//	ErrOTPAlreadyUsed  — the matching code was redeemed before
//	ErrOTPExpired      — the matching code exists but is past its window
//	ErrOTPMismatch     — codes were issued, none matches
func (r *OTPRepo) Consume(ctx context.Context, mobile, code, purpose string, now time.Time) (model.OTPVerification, error) {
	row, err := r.latest(ctx,
		"WHERE mobile_number=? AND code=? AND purpose=?", mobile, code, purpose)
	if errors.Is(err, ErrNotFound) {
		// No row for this exact code. Distinguish "never asked" from a
		// plain wrong guess.
		if _, err2 := r.latest(ctx, "WHERE mobile_number=? AND purpose=?", mobile, purpose); err2 != nil {
			if errors.Is(err2, ErrNotFound) {
				return model.OTPVerification{}, ErrOTPNotRequested
			}
			return model.OTPVerification{}, err2
		}
		return model.OTPVerification{}, ErrOTPMismatch
	}
	if err != nil {
		return model.OTPVerification{}, err
	}
	if row.VerifiedAt != nil {
		return model.OTPVerification{}, ErrOTPAlreadyUsed
	}
	if !now.Before(row.ExpiresAt) {
		return model.OTPVerification{}, ErrOTPExpired
	}
	// The guard on verified_at makes the stamp race-safe: two concurrent
	// verifies can both pass the checks above but only one update lands.
	res, err := r.db.ExecContext(ctx,
		"UPDATE otp_verifications SET verified_at=? WHERE id=? AND verified_at IS NULL", now, row.ID)
	if err != nil {
		return model.OTPVerification{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.OTPVerification{}, err
	}
	if n == 0 {
		return model.OTPVerification{}, ErrOTPAlreadyUsed
	}
	row.VerifiedAt = &now
	return row, nil
}

func (r *OTPRepo) latest(ctx context.Context, where string, args ...interface{}) (model.OTPVerification, error) {
	var (
		o        model.OTPVerification
		verified sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, mobile_number, code, purpose, expires_at, verified_at, created_at FROM otp_verifications "+
			where+" ORDER BY created_at DESC, id DESC LIMIT 1", args...).
		Scan(&o.ID, &o.MobileNumber, &o.Code, &o.Purpose, &o.ExpiresAt, &verified, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OTPVerification{}, ErrNotFound
	}
	if err != nil {
		return model.OTPVerification{}, err
	}
	if verified.Valid {
		t := verified.Time
		o.VerifiedAt = &t
	}
	return o, nil
}

// DeleteExpired removes rows whose window closed before the cutoff. Used by
// the retention job; verification correctness never depends on it.
func (r *OTPRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM otp_verifications WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
