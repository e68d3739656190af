package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// AuditRepo appends auth audit events. The table is the queryable record;
// the broker publish in internal/service is best-effort fan-out on top.
type AuditRepo struct{ db *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert appends one event.
func (r *AuditRepo) Insert(ctx context.Context, ev model.AuditEvent) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_events (user_id, action, detail, created_at) VALUES (?,?,?,?)",
		ev.UserID, ev.Action, ev.Detail, time.Now().UTC())
	return err
}

// CountByActionDetail counts events for an action and detail string, e.g.
// LOGIN_FAILED attempts against one identifier.
func (r *AuditRepo) CountByActionDetail(ctx context.Context, action, detail string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_events WHERE action=? AND detail=?", action, detail).Scan(&n)
	return n, err
}

// ListByUser returns a user's events, newest first.
func (r *AuditRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, action, detail, created_at FROM audit_events WHERE user_id=? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditEvent
	for rows.Next() {
		var (
			ev  model.AuditEvent
			uid sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &uid, &ev.Action, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			u := uint64(uid.Int64)
			ev.UserID = &u
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
