package handler_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/arohealth/hospital-auth/internal/config"
	"github.com/arohealth/hospital-auth/internal/gateway"
	"github.com/arohealth/hospital-auth/internal/handler"
	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/repository"
	"github.com/arohealth/hospital-auth/internal/router"
	"github.com/arohealth/hospital-auth/internal/testutil"
	"github.com/arohealth/hospital-auth/internal/utils"
)

// testEnv wires the full HTTP surface against an in-memory database so the
// tests exercise routing, middleware and handlers together.
type testEnv struct {
	t   *testing.T
	e   *echo.Echo
	db  *sql.DB
	cfg config.Config

	users       *repository.UserRepo
	tokens      *repository.TokenRepo
	otps        *repository.OTPRepo
	invitations *repository.InvitationRepo
	audit       *repository.AuditRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenDB(t)
	cfg := config.Config{
		Env:            "test",
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 30,
		BcryptCost:     4, // min cost keeps hashing fast in tests
		InviteBaseURL:  "http://localhost:3000",
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	otps := repository.NewOTPRepo(db)
	profiles := repository.NewProfileRepo(db)
	hospitals := repository.NewHospitalRepo(db)
	invitations := repository.NewInvitationRepo(db)
	audit := repository.NewAuditRepo(db)

	authH := handler.NewAuthHandler(cfg, users, tokens, otps, profiles, audit, gateway.LogSMSGateway{})
	invH := handler.NewInvitationHandler(cfg, db, users, tokens, invitations, profiles, hospitals, audit, gateway.LogEmailGateway{})

	e := echo.New()
	passthrough := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, passthrough, cfg.JWTSecret)
	router.RegisterInvitations(e, invH, cfg.JWTSecret)

	return &testEnv{
		t: t, e: e, db: db, cfg: cfg,
		users: users, tokens: tokens, otps: otps, invitations: invitations, audit: audit,
	}
}

type reqOpt func(*http.Request)

func bearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set(echo.HeaderAuthorization, "Bearer "+token) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

// do issues a JSON request through the real route table.
func (env *testEnv) do(method, path string, body interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	env.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(env.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) decode(rec *httptest.ResponseRecorder) map[string]interface{} {
	env.t.Helper()
	var out map[string]interface{}
	require.NoError(env.t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// latestOTP reads the newest issued code straight from the table; codes are
// random so the tests cannot know them any other way.
func (env *testEnv) latestOTP(mobile string) string {
	env.t.Helper()
	var code string
	err := env.db.QueryRow(
		"SELECT code FROM otp_verifications WHERE mobile_number=? ORDER BY id DESC LIMIT 1", mobile).
		Scan(&code)
	require.NoError(env.t, err)
	return code
}

// refreshCookie pulls the session cookie out of a response, failing the test
// when it is absent.
func (env *testEnv) refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	env.t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	env.t.Fatalf("no refresh_token cookie in response")
	return nil
}

// seedUser inserts a user through the repository and returns it with the
// generated id filled in.
func (env *testEnv) seedUser(u model.User) model.User {
	env.t.Helper()
	require.NoError(env.t, env.users.Create(env.t.Context(), &u))
	return u
}

// seedActiveUser creates an ACTIVE account with a hashed password.
func (env *testEnv) seedActiveUser(email, mobile, password, role string, hospitalID *uint64) model.User {
	env.t.Helper()
	hash, err := utils.HashPassword(password, env.cfg.BcryptCost)
	require.NoError(env.t, err)
	return env.seedUser(model.User{
		Email: &email, MobileNumber: mobile, PasswordHash: &hash,
		Role: role, Status: model.StatusActive, HospitalID: hospitalID,
	})
}

func (env *testEnv) seedHospital(name string) uint64 {
	env.t.Helper()
	now := time.Now().UTC()
	res, err := env.db.Exec(
		"INSERT INTO hospitals (name, created_at, updated_at) VALUES (?,?,?)", name, now, now)
	require.NoError(env.t, err)
	id, err := res.LastInsertId()
	require.NoError(env.t, err)
	return uint64(id)
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }

// accessTokenFor mints a valid bearer for an already-seeded user.
func (env *testEnv) accessTokenFor(u model.User) string {
	env.t.Helper()
	tok, err := utils.NewAccessToken(env.cfg.JWTSecret,
		utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}, env.cfg.AccessTTLMin)
	require.NoError(env.t, err)
	return tok.Token
}
