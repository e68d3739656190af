package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arohealth/hospital-auth/internal/model"
)

// ProfileRecord is the role-specific profile shape created alongside a user.
// Each variant knows its own table; dispatch happens through the interface
// instead of role conditionals scattered through the accept flow.
type ProfileRecord interface {
	Role() string
	insertTx(ctx context.Context, tx *sql.Tx) error
}

// DoctorProfile mirrors the `doctor_profiles` table.
type DoctorProfile struct {
	UserID      uint64
	FirstName   string
	LastName    string
	HospitalID  *uint64
	Permissions *string
}

func (p *DoctorProfile) Role() string { return model.RoleDoctor }

func (p *DoctorProfile) insertTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO doctor_profiles (user_id, first_name, last_name, hospital_id, permissions, created_at)
		 VALUES (?,?,?,?,?,?)`,
		p.UserID, p.FirstName, p.LastName, p.HospitalID, p.Permissions, time.Now().UTC())
	return err
}

// HospitalAdminProfile mirrors the `hospital_admin_profiles` table.
type HospitalAdminProfile struct {
	UserID      uint64
	FirstName   string
	LastName    string
	HospitalID  *uint64
	Permissions *string
}

func (p *HospitalAdminProfile) Role() string { return model.RoleHospitalAdmin }

func (p *HospitalAdminProfile) insertTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO hospital_admin_profiles (user_id, first_name, last_name, hospital_id, permissions, created_at)
		 VALUES (?,?,?,?,?,?)`,
		p.UserID, p.FirstName, p.LastName, p.HospitalID, p.Permissions, time.Now().UTC())
	return err
}

// PatientProfile mirrors the `patient_profiles` table.
type PatientProfile struct {
	UserID    uint64
	FirstName string
	LastName  string
}

func (p *PatientProfile) Role() string { return model.RolePatient }

func (p *PatientProfile) insertTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO patient_profiles (user_id, first_name, last_name, created_at) VALUES (?,?,?,?)",
		p.UserID, p.FirstName, p.LastName, time.Now().UTC())
	return err
}

// NewProfileForRole builds the profile variant for a role. This is the only
// place the role-to-shape mapping lives.
func NewProfileForRole(role string, userID uint64, firstName, lastName string, hospitalID *uint64, permissions *string) (ProfileRecord, error) {
	switch role {
	case model.RoleDoctor:
		return &DoctorProfile{UserID: userID, FirstName: firstName, LastName: lastName, HospitalID: hospitalID, Permissions: permissions}, nil
	case model.RoleHospitalAdmin:
		return &HospitalAdminProfile{UserID: userID, FirstName: firstName, LastName: lastName, HospitalID: hospitalID, Permissions: permissions}, nil
	case model.RolePatient:
		return &PatientProfile{UserID: userID, FirstName: firstName, LastName: lastName}, nil
	default:
		return nil, fmt.Errorf("no profile shape for role %q", role)
	}
}

// ProfileRepo creates and upserts role-specific profiles.
type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// CreateTx inserts the profile inside the caller's transaction.
func (r *ProfileRepo) CreateTx(ctx context.Context, tx *sql.Tx, p ProfileRecord) error {
	return p.insertTx(ctx, tx)
}

// UpsertPatient creates or refreshes the patient profile during setup
// completion. Patients may verify an OTP long before finishing setup, so the
// row may or may not exist yet.
func (r *ProfileRepo) UpsertPatient(ctx context.Context, userID uint64, firstName, lastName string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE patient_profiles SET first_name=?, last_name=? WHERE user_id=?",
		firstName, lastName, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO patient_profiles (user_id, first_name, last_name, created_at) VALUES (?,?,?,?)",
		userID, firstName, lastName, time.Now().UTC())
	return err
}
