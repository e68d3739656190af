package model

import "time"

// Roles a user account can carry. PATIENT accounts are self-provisioned
// through the OTP flow; DOCTOR and HOSPITAL_ADMIN accounts only come into
// existence by accepting an invitation; SUPER_ADMIN is created by the seed
// command.
const (
	RolePatient       = "PATIENT"
	RoleDoctor        = "DOCTOR"
	RoleHospitalAdmin = "HOSPITAL_ADMIN"
	RoleSuperAdmin    = "SUPER_ADMIN"
)

// Account statuses. A PENDING user verified a mobile number but has not
// finished setup (no email/password yet); an ACTIVE user always has a
// password hash.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
)

// User mirrors the `users` table. Email and PasswordHash are pointers
// because both stay NULL until the patient completes setup; MobileNumber is
// stored canonically as +91XXXXXXXXXX and is unique.
type User struct {
	ID           uint64     // users.id
	Email        *string    // users.email (nullable until setup)
	MobileNumber string     // users.mobile_number, E.164
	PasswordHash *string    // users.password_hash (nullable until setup)
	Role         string     // users.role
	Status       string     // users.status (PENDING | ACTIVE)
	HospitalID   *uint64    // users.hospital_id (staff only)
	LastLoginAt  *time.Time // users.last_login_at
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// IsStaffRole reports whether the role may only be granted via invitation.
func IsStaffRole(role string) bool {
	return role == RoleDoctor || role == RoleHospitalAdmin || role == RoleSuperAdmin
}

// RequiresSetup reports whether the account still needs the one-time setup
// step (email + password) before it can log in with credentials.
func (u *User) RequiresSetup() bool {
	return u.Status == StatusPending || u.PasswordHash == nil || u.Email == nil
}
