package handler_test

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arohealth/hospital-auth/internal/model"
)

const doctorMobile = "+919811111111"

func seedSuperAdmin(t *testing.T, env *testEnv) (model.User, string) {
	t.Helper()
	u := env.seedActiveUser("root@example.com", "+919800000000", testPassword, model.RoleSuperAdmin, nil)
	return u, env.accessTokenFor(u)
}

func createInvitation(t *testing.T, env *testEnv, token string, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	rec := env.do(http.MethodPost, "/v1/invitations", body, bearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return env.decode(rec)
}

func TestInvitationCreate_RequiresAdminBearer(t *testing.T) {
	env := newTestEnv(t)
	patient := env.seedActiveUser("pat@example.com", testMobile, testPassword, model.RolePatient, nil)

	body := map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"}

	rec := env.do(http.MethodPost, "/v1/invitations", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/v1/invitations", body, bearer(env.accessTokenFor(patient)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvitationCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	rec := env.do(http.MethodPost, "/v1/invitations",
		map[string]interface{}{"email": "not-an-email", "role": "DOCTOR"}, bearer(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Patients and super admins are never invited.
	rec = env.do(http.MethodPost, "/v1/invitations",
		map[string]interface{}{"email": "doc@example.com", "role": "PATIENT"}, bearer(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/v1/invitations",
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR", "hospital_id": 999}, bearer(admin))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvitationCreate_Duplicates(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)
	env.seedActiveUser("existing@example.com", "+919822222222", testPassword, model.RoleDoctor, nil)

	// An email that already has an account cannot be invited.
	rec := env.do(http.MethodPost, "/v1/invitations",
		map[string]interface{}{"email": "existing@example.com", "role": "DOCTOR"}, bearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_USER", env.decode(rec)["code"])

	createInvitation(t, env, admin, map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})

	// A second live invitation for the same email conflicts.
	rec = env.do(http.MethodPost, "/v1/invitations",
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"}, bearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_INVITATION", env.decode(rec)["code"])
}

func TestInvitationAccept_FullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	inv := createInvitation(t, env, admin,
		map[string]interface{}{"email": "Doc@Example.com", "role": "DOCTOR"})
	assert.Equal(t, "doc@example.com", inv["email"])
	assert.Equal(t, model.InvitationPending, inv["status"])
	token := inv["token"].(string)
	require.Len(t, token, 64)

	rec := env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": token, "mobile": doctorMobile, "password": testPassword,
		"first_name": "Asha", "last_name": "Rao",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := env.decode(rec)
	assert.NotEmpty(t, resp["access_token"])
	env.refreshCookie(rec)

	user := resp["user"].(map[string]interface{})
	assert.Equal(t, model.RoleDoctor, user["role"])
	assert.Equal(t, model.StatusActive, user["status"])
	assert.Equal(t, "doc@example.com", user["email"])

	stored, err := env.invitations.GetByID(t.Context(), uint64(inv["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, model.InvitationAccepted, stored.Status)
	require.NotNil(t, stored.AcceptedAt)

	var first string
	require.NoError(t, env.db.QueryRow(
		"SELECT first_name FROM doctor_profiles WHERE user_id=?",
		uint64(user["id"].(float64))).Scan(&first))
	assert.Equal(t, "Asha", first)

	// The token is spent; a replay cannot mint a second account.
	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": token, "mobile": "+919833333333", "password": testPassword,
		"first_name": "B", "last_name": "C",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", env.decode(rec)["code"])
}

func TestInvitationAccept_Guards(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	inv := createInvitation(t, env, admin,
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})
	token := inv["token"].(string)

	// Unknown token.
	rec := env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": "deadbeef", "mobile": doctorMobile, "password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Weak password and bad mobile fail before any account is created.
	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": token, "mobile": doctorMobile, "password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "WEAK_PASSWORD", env.decode(rec)["code"])

	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": token, "mobile": "12345", "password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A mobile already on file blocks the accept; the invitation stays usable.
	env.seedActiveUser("other@example.com", doctorMobile, testPassword, model.RolePatient, nil)
	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": token, "mobile": doctorMobile, "password": testPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_MOBILE", env.decode(rec)["code"])

	stored, err := env.invitations.GetByID(t.Context(), uint64(inv["id"].(float64)))
	require.NoError(t, err)
	assert.Equal(t, model.InvitationPending, stored.Status)
}

func TestInvitationAccept_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	inv := createInvitation(t, env, admin,
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})
	_, err := env.db.Exec("UPDATE invitations SET expires_at=? WHERE id=?",
		time.Now().UTC().Add(-time.Hour), uint64(inv["id"].(float64)))
	require.NoError(t, err)

	rec := env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": inv["token"].(string), "mobile": doctorMobile, "password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_OR_EXPIRED_TOKEN", env.decode(rec)["code"])
}

func TestInvitationAccept_HospitalAdminBackfill(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)
	hospitalID := env.seedHospital("City General")

	inv := createInvitation(t, env, admin, map[string]interface{}{
		"email": "hadmin@example.com", "role": "HOSPITAL_ADMIN", "hospital_id": hospitalID,
	})

	rec := env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": inv["token"].(string), "mobile": doctorMobile, "password": testPassword,
		"first_name": "Mira", "last_name": "Shah",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := env.decode(rec)["user"].(map[string]interface{})

	// Accepting the admin invitation writes the hospital's admin link.
	var adminUserID sql.NullInt64
	require.NoError(t, env.db.QueryRow(
		"SELECT admin_user_id FROM hospitals WHERE id=?", hospitalID).Scan(&adminUserID))
	require.True(t, adminUserID.Valid)
	assert.Equal(t, int64(user["id"].(float64)), adminUserID.Int64)
}

func TestInvitationResend_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	inv := createInvitation(t, env, admin,
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})
	oldToken := inv["token"].(string)
	id := uint64(inv["id"].(float64))

	rec := env.do(http.MethodPost, "/v1/invitations/"+itoa(id)+"/resend", nil, bearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	newToken := env.decode(rec)["token"].(string)
	require.NotEqual(t, oldToken, newToken)

	// The old link dies the moment the new one is mailed.
	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": oldToken, "mobile": doctorMobile, "password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": newToken, "mobile": doctorMobile, "password": testPassword,
		"first_name": "Asha", "last_name": "Rao",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestInvitationRevoke(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	inv := createInvitation(t, env, admin,
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})
	id := uint64(inv["id"].(float64))

	rec := env.do(http.MethodPost, "/v1/invitations/"+itoa(id)+"/revoke", nil, bearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.InvitationRevoked, env.decode(rec)["status"])

	// Revoked tokens cannot be accepted, resent or revoked again.
	rec = env.do(http.MethodPost, "/v1/invitations/accept", map[string]string{
		"token": inv["token"].(string), "mobile": doctorMobile, "password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/v1/invitations/"+itoa(id)+"/resend", nil, bearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATE", env.decode(rec)["code"])

	rec = env.do(http.MethodPost, "/v1/invitations/"+itoa(id)+"/revoke", nil, bearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvitation_HospitalAdminScope(t *testing.T) {
	env := newTestEnv(t)
	_, super := seedSuperAdmin(t, env)
	ownID := env.seedHospital("City General")
	otherID := env.seedHospital("Lakeside Clinic")

	hadmin := env.seedActiveUser("hadmin@example.com", "+919844444444", testPassword,
		model.RoleHospitalAdmin, &ownID)
	hadminTok := env.accessTokenFor(hadmin)

	// Hospital admins cannot mint other admins.
	rec := env.do(http.MethodPost, "/v1/invitations", map[string]interface{}{
		"email": "x@example.com", "role": "HOSPITAL_ADMIN",
	}, bearer(hadminTok))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Nor reach into another hospital.
	rec = env.do(http.MethodPost, "/v1/invitations", map[string]interface{}{
		"email": "x@example.com", "role": "DOCTOR", "hospital_id": otherID,
	}, bearer(hadminTok))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Omitting the hospital pins the invitation to their own.
	inv := createInvitation(t, env, hadminTok,
		map[string]interface{}{"email": "doc@example.com", "role": "DOCTOR"})
	assert.Equal(t, float64(ownID), inv["hospital_id"])

	// A super admin's invitation in another hospital reads as absent, not
	// forbidden, to the hospital admin.
	foreign := createInvitation(t, env, super, map[string]interface{}{
		"email": "far@example.com", "role": "DOCTOR", "hospital_id": otherID,
	})
	foreignID := uint64(foreign["id"].(float64))
	rec = env.do(http.MethodPost, "/v1/invitations/"+itoa(foreignID)+"/revoke", nil, bearer(hadminTok))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Listing is tenant-scoped for hospital admins.
	rec = env.do(http.MethodGet, "/v1/invitations", nil, bearer(hadminTok))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := env.decode(rec)["invitations"].([]interface{})
	require.Len(t, listed, 1)
	assert.Equal(t, "doc@example.com", listed[0].(map[string]interface{})["email"])
}

func TestInvitationList_SuperAdminSeesOwnIssued(t *testing.T) {
	env := newTestEnv(t)
	_, admin := seedSuperAdmin(t, env)

	createInvitation(t, env, admin, map[string]interface{}{"email": "a@example.com", "role": "DOCTOR"})
	createInvitation(t, env, admin, map[string]interface{}{"email": "b@example.com", "role": "DOCTOR"})

	rec := env.do(http.MethodGet, "/v1/invitations", nil, bearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := env.decode(rec)["invitations"].([]interface{})
	assert.Len(t, listed, 2)
}
