package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// InvitationRepo manages staff-onboarding tokens in the `invitations` table.
// Status transitions are one-way and guarded in SQL (WHERE status='PENDING')
// so races collapse to a single winner.
type InvitationRepo struct{ db *sql.DB }

func NewInvitationRepo(db *sql.DB) *InvitationRepo { return &InvitationRepo{db: db} }

const invitationColumns = "id, email, token, role, hospital_id, permissions, invited_by, status, expires_at, accepted_at, created_at, updated_at"

// Create inserts a PENDING invitation and populates the generated ID.
func (r *InvitationRepo) Create(ctx context.Context, inv *model.Invitation) error {
	now := time.Now().UTC()
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	inv.Status = model.InvitationPending
	inv.CreatedAt, inv.UpdatedAt = now, now
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (email, token, role, hospital_id, permissions, invited_by, status, expires_at, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		inv.Email, inv.Token, inv.Role, inv.HospitalID, inv.Permissions, inv.InvitedBy,
		inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = uint64(id)
	return nil
}

// GetByID fetches an invitation by primary key.
func (r *InvitationRepo) GetByID(ctx context.Context, id uint64) (model.Invitation, error) {
	return r.get(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE id=? LIMIT 1", id)
}

// GetByToken fetches an invitation by exact token match.
func (r *InvitationRepo) GetByToken(ctx context.Context, token string) (model.Invitation, error) {
	return r.get(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE token=? LIMIT 1", token)
}

// HasLivePending reports whether a PENDING, unexpired invitation already
// exists for the email.
func (r *InvitationRepo) HasLivePending(ctx context.Context, email string, now time.Time) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM invitations WHERE email=? AND status=? AND expires_at > ? LIMIT 1",
		email, model.InvitationPending, now).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Rotate swaps in a fresh token and expiry on a still-PENDING invitation.
// The old token stops matching the moment the update lands.
func (r *InvitationRepo) Rotate(ctx context.Context, id uint64, token string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invitations SET token=?, expires_at=?, updated_at=? WHERE id=? AND status=?",
		token, expiresAt, time.Now().UTC(), id, model.InvitationPending)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrInvalidState)
}

// Revoke transitions PENDING -> REVOKED. Any other starting status fails
// with ErrInvalidState.
func (r *InvitationRepo) Revoke(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invitations SET status=?, updated_at=? WHERE id=? AND status=?",
		model.InvitationRevoked, time.Now().UTC(), id, model.InvitationPending)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrInvalidState)
}

// MarkAcceptedTx transitions PENDING -> ACCEPTED inside the accept
// transaction. The status guard makes double-accept impossible even if two
// requests race on the same token.
func (r *InvitationRepo) MarkAcceptedTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE invitations SET status=?, accepted_at=?, updated_at=? WHERE id=? AND status=?",
		model.InvitationAccepted, at, at, id, model.InvitationPending)
	if err != nil {
		return err
	}
	return oneRowOr(res, ErrInvalidState)
}

// ListByInviter returns invitations issued by a user, newest first.
func (r *InvitationRepo) ListByInviter(ctx context.Context, invitedBy uint64) ([]model.Invitation, error) {
	return r.list(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE invited_by=? ORDER BY created_at DESC", invitedBy)
}

// ListByHospital returns invitations targeting a hospital, newest first.
func (r *InvitationRepo) ListByHospital(ctx context.Context, hospitalID uint64) ([]model.Invitation, error) {
	return r.list(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE hospital_id=? ORDER BY created_at DESC", hospitalID)
}

// ExpireStale flips PENDING rows past their window to EXPIRED (retention
// job). Acceptance checks expiry on read, so this is bookkeeping, not a
// correctness requirement.
func (r *InvitationRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE invitations SET status=?, updated_at=? WHERE status=? AND expires_at < ?",
		model.InvitationExpired, now, model.InvitationPending, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *InvitationRepo) get(ctx context.Context, query string, arg interface{}) (model.Invitation, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	inv, err := scanInvitation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invitation{}, ErrNotFound
	}
	return inv, err
}

func (r *InvitationRepo) list(ctx context.Context, query string, arg interface{}) ([]model.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(scan func(...interface{}) error) (model.Invitation, error) {
	var (
		inv      model.Invitation
		hospital sql.NullInt64
		perms    sql.NullString
		accepted sql.NullTime
	)
	err := scan(&inv.ID, &inv.Email, &inv.Token, &inv.Role, &hospital, &perms,
		&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &accepted, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return model.Invitation{}, err
	}
	if hospital.Valid {
		hid := uint64(hospital.Int64)
		inv.HospitalID = &hid
	}
	if perms.Valid {
		inv.Permissions = &perms.String
	}
	if accepted.Valid {
		t := accepted.Time
		inv.AcceptedAt = &t
	}
	return inv, nil
}

func oneRowOr(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
