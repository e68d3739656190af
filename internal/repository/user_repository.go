package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// UserRepo persists identity records in the `users` table.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = "id, email, mobile_number, password_hash, role, status, hospital_id, last_login_at, created_at, updated_at"

// Create inserts a user and populates the generated ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	return r.create(ctx, r.db, u)
}

// CreateTx is Create inside an existing transaction; used by invitation
// accept so the user row commits or rolls back with the rest of the flow.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User) error {
	return r.create(ctx, tx, u)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *UserRepo) create(ctx context.Context, ex execer, u *model.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Email != nil {
		norm := strings.ToLower(strings.TrimSpace(*u.Email))
		u.Email = &norm
	}
	res, err := ex.ExecContext(ctx,
		`INSERT INTO users (email, mobile_number, password_hash, role, status, hospital_id, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		u.Email, u.MobileNumber, u.PasswordHash, u.Role, u.Status, u.HospitalID, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			if strings.Contains(strings.ToLower(err.Error()), "mobile") {
				return ErrDuplicateMobile
			}
			return ErrDuplicateEmail
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByMobile fetches a user by canonical mobile number.
func (r *UserRepo) GetByMobile(ctx context.Context, mobile string) (model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE mobile_number=? LIMIT 1", mobile)
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

func (r *UserRepo) get(ctx context.Context, query string, arg interface{}) (model.User, error) {
	var (
		u         model.User
		email     sql.NullString
		hash      sql.NullString
		hospital  sql.NullInt64
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &email, &u.MobileNumber, &hash, &u.Role, &u.Status,
		&hospital, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if hash.Valid {
		u.PasswordHash = &hash.String
	}
	if hospital.Valid {
		hid := uint64(hospital.Int64)
		u.HospitalID = &hid
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// ExistsByEmail reports whether any user carries the given email.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ExistsByMobileTx reports mobile uniqueness inside a transaction, used by
// the invitation-accept flow before inserting the user.
func (r *UserRepo) ExistsByMobileTx(ctx context.Context, tx *sql.Tx, mobile string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE mobile_number=? LIMIT 1", mobile).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CompleteSetup stamps email, password hash and ACTIVE status on a PENDING
// account. The status guard makes the transition one-way; zero rows affected
// means the account was already set up.
func (r *UserRepo) CompleteSetup(ctx context.Context, id uint64, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET email=?, password_hash=?, status=?, updated_at=? WHERE id=? AND status=?",
		email, passwordHash, model.StatusActive, time.Now().UTC(), id, model.StatusPending)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// UpdateLastLogin records a successful credential login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET last_login_at=?, updated_at=? WHERE id=?", at, at, id)
	return err
}
