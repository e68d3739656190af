// Package testutil provides shared test fixtures. Tests run against an
// in-memory sqlite database with the same schema shape as the MySQL
// deployment; the repositories keep their SQL portable (Go-side timestamps,
// `?` placeholders) so both drivers accept it.
package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    email         TEXT UNIQUE,
    mobile_number TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    role          TEXT NOT NULL,
    status        TEXT NOT NULL,
    hospital_id   INTEGER,
    last_login_at TIMESTAMP,
    created_at    TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE otp_verifications (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    mobile_number TEXT NOT NULL,
    code          TEXT NOT NULL,
    purpose       TEXT NOT NULL,
    expires_at    TIMESTAMP NOT NULL,
    verified_at   TIMESTAMP,
    created_at    TIMESTAMP NOT NULL
);

CREATE TABLE refresh_tokens (
    id         TEXT PRIMARY KEY,
    user_id    INTEGER NOT NULL,
    token_hash TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE invitations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    email       TEXT NOT NULL,
    token       TEXT NOT NULL UNIQUE,
    role        TEXT NOT NULL,
    hospital_id INTEGER,
    permissions TEXT,
    invited_by  INTEGER NOT NULL,
    status      TEXT NOT NULL,
    expires_at  TIMESTAMP NOT NULL,
    accepted_at TIMESTAMP,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE doctor_profiles (
    user_id     INTEGER PRIMARY KEY,
    first_name  TEXT NOT NULL,
    last_name   TEXT NOT NULL,
    hospital_id INTEGER,
    permissions TEXT,
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE hospital_admin_profiles (
    user_id     INTEGER PRIMARY KEY,
    first_name  TEXT NOT NULL,
    last_name   TEXT NOT NULL,
    hospital_id INTEGER,
    permissions TEXT,
    created_at  TIMESTAMP NOT NULL
);

CREATE TABLE patient_profiles (
    user_id    INTEGER PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name  TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE hospitals (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL,
    admin_user_id INTEGER,
    created_at    TIMESTAMP,
    updated_at    TIMESTAMP
);

CREATE TABLE audit_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER,
    action     TEXT NOT NULL,
    detail     TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

// OpenDB returns a fresh in-memory database with the full schema applied.
// A single pooled connection keeps every statement on the same in-memory
// instance; the handle is closed with the test.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
