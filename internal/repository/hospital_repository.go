package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// HospitalRepo touches the `hospitals` collaborator table only as far as the
// auth subsystem needs it: existence checks when scoping invitations and the
// admin back-fill when a HOSPITAL_ADMIN invitation is accepted.
type HospitalRepo struct{ db *sql.DB }

func NewHospitalRepo(db *sql.DB) *HospitalRepo { return &HospitalRepo{db: db} }

// Exists reports whether a hospital row exists.
func (r *HospitalRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM hospitals WHERE id=? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetAdminTx back-fills hospitals.admin_user_id inside the accept
// transaction.
func (r *HospitalRepo) SetAdminTx(ctx context.Context, tx *sql.Tx, hospitalID, userID uint64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE hospitals SET admin_user_id=?, updated_at=? WHERE id=?",
		userID, time.Now().UTC(), hospitalID)
	return err
}
