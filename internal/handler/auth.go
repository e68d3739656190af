package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arohealth/hospital-auth/internal/config"
	"github.com/arohealth/hospital-auth/internal/gateway"
	"github.com/arohealth/hospital-auth/internal/middleware"
	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/queue"
	"github.com/arohealth/hospital-auth/internal/repository"
	queue_publisher "github.com/arohealth/hospital-auth/internal/service"
	"github.com/arohealth/hospital-auth/internal/utils"
)

// AuthHandler bundles dependencies for the session endpoints: OTP issue and
// verify, setup completion, credential login, refresh rotation and logout.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
	OTPs     *repository.OTPRepo
	Profiles *repository.ProfileRepo
	Audit    *repository.AuditRepo
	SMS      gateway.SMSGateway
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo,
	o *repository.OTPRepo, p *repository.ProfileRepo, a *repository.AuditRepo, sms gateway.SMSGateway) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, OTPs: o, Profiles: p, Audit: a, SMS: sms}
}

// refreshCookieName is the HTTP-only cookie carrying the long-lived token.
const refreshCookieName = "refresh_token"

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ----- DTOs -----

type sendOTPReq struct {
	Mobile  string `json:"mobile"`
	Purpose string `json:"purpose"` // LOGIN | REGISTRATION
}
type verifyOTPReq struct {
	Mobile   string `json:"mobile"`
	Code     string `json:"code"`
	Purpose  string `json:"purpose"`
	UserType string `json:"user_type"`
}
type setupReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
type loginReq struct {
	Identifier string `json:"identifier"` // email or mobile number
	Password   string `json:"password"`
}

type userPart struct {
	ID     uint64  `json:"id"`
	Email  *string `json:"email"`
	Mobile string  `json:"mobile_number"`
	Role   string  `json:"role"`
	Status string  `json:"status"`
}
type sessionResp struct {
	User        userPart `json:"user"`
	AccessToken string   `json:"access_token"`
	ExpiresAt   string   `json:"expires_at"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, Mobile: u.MobileNumber, Role: u.Role, Status: u.Status}
}

// SendOTP issues a one-time code for a mobile number and dispatches it via
// the SMS collaborator. SMS failure is logged by the gateway and does not
// fail the request; the code row is already persisted.
func (h *AuthHandler) SendOTP(c echo.Context) error {
	var req sendOTPReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}
	purpose := strings.ToUpper(strings.TrimSpace(req.Purpose))
	if purpose != model.OTPPurposeLogin && purpose != model.OTPPurposeRegistration {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "purpose must be LOGIN or REGISTRATION", "code": "VALIDATION"})
	}
	mobile, err := utils.NormalizeMobile(req.Mobile)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mobile number", "code": "INVALID_PHONE"})
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "otp generation failed", "code": "INTERNAL"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	otp := model.OTPVerification{
		MobileNumber: mobile,
		Code:         code,
		Purpose:      purpose,
		ExpiresAt:    time.Now().UTC().Add(model.OTPTTL),
	}
	if err := h.OTPs.Create(ctx, &otp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "otp issue failed", "code": "INTERNAL"})
	}
	_ = h.SMS.Send(ctx, mobile, "Your verification code is "+code+". It expires in 10 minutes.")

	return c.JSON(http.StatusOK, echo.Map{"ok": true, "expires_in": int(model.OTPTTL / time.Second)})
}

// VerifyOTP redeems a code. A brand-new mobile number provisions a PENDING
// patient account; staff can only verify against an existing account. The
// returned temp token is the bearer for the follow-up setup call.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyOTPReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}
	mobile, err := utils.NormalizeMobile(req.Mobile)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mobile number", "code": "INVALID_PHONE"})
	}
	purpose := strings.ToUpper(strings.TrimSpace(req.Purpose))
	if purpose == "" {
		purpose = model.OTPPurposeLogin
	}
	userType := strings.ToUpper(strings.TrimSpace(req.UserType))
	if userType == "" || userType == "USER" {
		userType = model.RolePatient
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.OTPs.Consume(ctx, mobile, strings.TrimSpace(req.Code), purpose, time.Now().UTC()); err != nil {
		switch {
		case errors.Is(err, repository.ErrOTPNotRequested):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "request an otp first", "code": "OTP_NOT_REQUESTED"})
		case errors.Is(err, repository.ErrOTPExpired):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "otp expired", "code": "OTP_EXPIRED"})
		case errors.Is(err, repository.ErrOTPAlreadyUsed):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "otp already used", "code": "OTP_ALREADY_USED"})
		case errors.Is(err, repository.ErrOTPMismatch):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid otp", "code": "INVALID_OTP"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "otp verification failed", "code": "INTERNAL"})
		}
	}

	u, err := h.Users.GetByMobile(ctx, mobile)
	isNew := false
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Staff accounts are invitation-only; a fresh mobile can only
		// become a patient.
		if model.IsStaffRole(userType) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account type requires an invitation", "code": "DISALLOWED_USER_TYPE"})
		}
		u = model.User{MobileNumber: mobile, Role: model.RolePatient, Status: model.StatusPending}
		if err := h.Users.Create(ctx, &u); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed", "code": "INTERNAL"})
		}
		isNew = true
		h.record(ctx, model.AuditUserRegister, &u.ID, mobile, "", "self-registration via otp")
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	default:
		h.record(ctx, model.AuditOTPVerified, &u.ID, mobile, "", "otp verified")
	}

	temp, err := utils.NewAccessToken(h.Cfg.JWTSecret,
		utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed", "code": "INTERNAL"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"is_new_user":    isNew,
		"requires_setup": u.RequiresSetup(),
		"temp_token":     temp.Token,
		"user":           toUserPart(u),
	})
}

// CompleteSetup finishes a PENDING patient account: email + password land,
// status flips to ACTIVE, and a full session pair is issued. Valid only for
// the bearer of the temp token from VerifyOTP.
func (h *AuthHandler) CompleteSetup(c echo.Context) error {
	var req setupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRe.MatchString(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email", "code": "VALIDATION"})
	}
	if err := utils.ValidatePasswordStrength(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be 8+ chars with upper, lower and digit", "code": "WEAK_PASSWORD"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
	}
	if u.Role != model.RolePatient {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "FORBIDDEN"})
	}
	if !u.RequiresSetup() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "account already set up", "code": "ALREADY_SETUP"})
	}
	if exists, err := h.Users.ExistsByEmail(ctx, email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	} else if exists {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered", "code": "DUPLICATE_EMAIL"})
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed", "code": "INTERNAL"})
	}
	if err := h.Users.CompleteSetup(ctx, u.ID, email, hash); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered", "code": "DUPLICATE_EMAIL"})
		case errors.Is(err, repository.ErrInvalidState):
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already set up", "code": "ALREADY_SETUP"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed", "code": "INTERNAL"})
		}
	}
	if err := h.Profiles.UpsertPatient(ctx, u.ID, strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)); err != nil {
		// Profile row is repairable; the account transition already landed.
		c.Logger().Errorf("setup: patient profile upsert failed for user %d: %v", u.ID, err)
	}

	u.Email = &email
	u.Status = model.StatusActive
	h.record(ctx, model.AuditUserSetupCompleted, &u.ID, u.MobileNumber, email, "setup completed")

	return h.respondWithSession(c, ctx, u, http.StatusOK)
}

// Login authenticates by email or mobile plus password. Unknown identifier
// and wrong password are indistinguishable to the caller.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}
	ident := strings.TrimSpace(req.Identifier)
	if ident == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier/password required", "code": "VALIDATION"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		u   model.User
		err error
	)
	if strings.Contains(ident, "@") {
		u, err = h.Users.GetByEmail(ctx, ident)
	} else {
		mobile, normErr := utils.NormalizeMobile(ident)
		if normErr != nil {
			return h.loginFailed(c, ctx, nil, ident)
		}
		u, err = h.Users.GetByMobile(ctx, mobile)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return h.loginFailed(c, ctx, nil, ident)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	}
	if u.PasswordHash == nil || !utils.VerifyPassword(*u.PasswordHash, req.Password) {
		return h.loginFailed(c, ctx, &u.ID, ident)
	}
	// Correct password but unfinished account: say so, issue nothing.
	if u.Status != model.StatusActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account not active, complete setup first", "code": "ACCOUNT_NOT_ACTIVE"})
	}

	now := time.Now().UTC()
	if err := h.Users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		c.Logger().Errorf("login: last_login update failed for user %d: %v", u.ID, err)
	}
	u.LastLoginAt = &now
	h.record(ctx, model.AuditUserLogin, &u.ID, u.MobileNumber, ident, "credential login")

	return h.respondWithSession(c, ctx, u, http.StatusOK)
}

func (h *AuthHandler) loginFailed(c echo.Context, ctx context.Context, userID *uint64, ident string) error {
	h.record(ctx, model.AuditLoginFailed, userID, "", ident, ident)
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials", "code": "INVALID_CREDENTIALS"})
}

// Refresh rotates the session: the presented cookie's ledger row is deleted
// and a new pair is issued in one transaction. A rotated-out cookie (stale
// tab) fails with 401 and no token is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
	}
	payload, jti, err := utils.VerifyRefreshToken(h.Cfg.JWTSecret, cookie.Value)
	if err != nil || jti == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, payload.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
	}

	next, err := utils.NewRefreshToken(h.Cfg.JWTSecret,
		utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}, h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed", "code": "INTERNAL"})
	}
	err = h.Tokens.Rotate(ctx, jti, utils.HashToken(cookie.Value), u.ID, model.RefreshToken{
		ID: next.JTI, UserID: u.ID, TokenHash: utils.HashToken(next.Token), ExpiresAt: next.Exp,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "UNAUTHORIZED"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed", "code": "INTERNAL"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret,
		utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "INTERNAL"})
	}
	h.setRefreshCookie(c, next.Token, next.Exp)
	return c.JSON(http.StatusOK, sessionResp{
		User:        toUserPart(u),
		AccessToken: access.Token,
		ExpiresAt:   access.Exp.Format(time.RFC3339),
	})
}

// Logout retires the presented session if it exists. Always clears the
// cookie and reports success: logging out twice is not an error. The clear
// must happen before c.JSON commits the response; headers set after that are
// never sent.
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		h.clearRefreshCookie(c)
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}
	payload, jti, err := utils.VerifyRefreshToken(h.Cfg.JWTSecret, cookie.Value)
	if err != nil || jti == "" {
		h.clearRefreshCookie(c)
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	removed, err := h.Tokens.Delete(ctx, jti, utils.HashToken(cookie.Value))
	if err != nil {
		c.Logger().Errorf("logout: delete failed: %v", err)
	}
	if removed {
		h.record(ctx, model.AuditUserLogout, &payload.UserID, payload.Mobile, "", "logout")
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Me returns the authenticated identity (protected smoke endpoint).
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": middleware.UserID(c),
		"role":    middleware.Role(c),
	})
}

// respondWithSession issues an access+refresh pair, persists the ledger row,
// sets the cookie and writes the session response.
func (h *AuthHandler) respondWithSession(c echo.Context, ctx context.Context, u model.User, status int) error {
	payload := utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, payload, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "INTERNAL"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.JWTSecret, payload, h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed", "code": "INTERNAL"})
	}
	if err := h.Tokens.Store(ctx, model.RefreshToken{
		ID: refresh.JTI, UserID: u.ID, TokenHash: utils.HashToken(refresh.Token), ExpiresAt: refresh.Exp,
	}); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed", "code": "INTERNAL"})
	}
	h.setRefreshCookie(c, refresh.Token, refresh.Exp)
	return c.JSON(status, sessionResp{
		User:        toUserPart(u),
		AccessToken: access.Token,
		ExpiresAt:   access.Exp.Format(time.RFC3339),
	})
}

func (h *AuthHandler) setRefreshCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/v1/auth",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// record appends the audit row (record of truth) and fans the event out to
// the broker. The publish is fire-and-forget; the request never waits on
// the broker.
func (h *AuthHandler) record(ctx context.Context, action string, userID *uint64, mobile, email, detail string) {
	if err := h.Audit.Insert(ctx, model.AuditEvent{UserID: userID, Action: action, Detail: detail}); err != nil {
		// Audit insert failures must not fail the auth flow itself.
		log.Printf("audit: insert %s failed: %v", action, err)
	}
	ev := queue.AuthEvent{
		Action: action, UserID: userID, Mobile: mobile, Email: email, Detail: detail,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	go func() { _ = queue_publisher.PublishAuthEvent(context.Background(), ev) }()
}
