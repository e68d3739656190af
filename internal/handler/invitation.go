package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arohealth/hospital-auth/internal/config"
	"github.com/arohealth/hospital-auth/internal/gateway"
	"github.com/arohealth/hospital-auth/internal/middleware"
	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/repository"
	"github.com/arohealth/hospital-auth/internal/utils"
)

// InvitationHandler implements the staff-onboarding token lifecycle.
// Accept is the one multi-table flow in the subsystem and runs on a single
// transaction; everything the invitation promises lands atomically or not
// at all.
type InvitationHandler struct {
	Cfg         config.Config
	DB          *sql.DB
	Users       *repository.UserRepo
	Tokens      *repository.TokenRepo
	Invitations *repository.InvitationRepo
	Profiles    *repository.ProfileRepo
	Hospitals   *repository.HospitalRepo
	Audit       *repository.AuditRepo
	Email       gateway.EmailGateway
}

func NewInvitationHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, t *repository.TokenRepo,
	i *repository.InvitationRepo, p *repository.ProfileRepo, hos *repository.HospitalRepo,
	a *repository.AuditRepo, email gateway.EmailGateway) *InvitationHandler {
	return &InvitationHandler{Cfg: cfg, DB: db, Users: u, Tokens: t, Invitations: i,
		Profiles: p, Hospitals: hos, Audit: a, Email: email}
}

// ----- DTOs -----

type createInvitationReq struct {
	Email       string  `json:"email"`
	Role        string  `json:"role"` // DOCTOR | HOSPITAL_ADMIN
	HospitalID  *uint64 `json:"hospital_id"`
	Permissions *string `json:"permissions"`
}
type acceptInvitationReq struct {
	Token     string `json:"token"`
	Mobile    string `json:"mobile"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type invitationPart struct {
	ID         uint64  `json:"id"`
	Email      string  `json:"email"`
	Token      string  `json:"token"`
	Role       string  `json:"role"`
	HospitalID *uint64 `json:"hospital_id,omitempty"`
	Status     string  `json:"status"`
	ExpiresAt  string  `json:"expires_at"`
}

func toInvitationPart(inv model.Invitation) invitationPart {
	return invitationPart{
		ID: inv.ID, Email: inv.Email, Token: inv.Token, Role: inv.Role,
		HospitalID: inv.HospitalID, Status: inv.Status,
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	}
}

// Create issues a PENDING invitation and mails the accept link. Super
// admins may invite any staff role anywhere; hospital admins may only
// invite doctors into their own hospital.
func (h *InvitationHandler) Create(c echo.Context) error {
	var req createInvitationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRe.MatchString(email) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email", "code": "VALIDATION"})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleDoctor && role != model.RoleHospitalAdmin {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be DOCTOR or HOSPITAL_ADMIN", "code": "VALIDATION"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hospitalID := req.HospitalID
	if middleware.Role(c) == model.RoleHospitalAdmin {
		actor, err := h.Users.GetByID(ctx, middleware.UserID(c))
		if err != nil || actor.HospitalID == nil {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "FORBIDDEN"})
		}
		// Hospital admins cannot mint other admins or reach across tenants.
		if role != model.RoleDoctor {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "FORBIDDEN"})
		}
		if hospitalID != nil && *hospitalID != *actor.HospitalID {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "FORBIDDEN"})
		}
		hospitalID = actor.HospitalID
	}
	if hospitalID != nil {
		ok, err := h.Hospitals.Exists(ctx, *hospitalID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
		}
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown hospital", "code": "VALIDATION"})
		}
	}

	if exists, err := h.Users.ExistsByEmail(ctx, email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	} else if exists {
		return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists", "code": "DUPLICATE_USER"})
	}
	if live, err := h.Invitations.HasLivePending(ctx, email, time.Now().UTC()); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	} else if live {
		return c.JSON(http.StatusConflict, echo.Map{"error": "pending invitation already exists", "code": "DUPLICATE_INVITATION"})
	}

	token, err := utils.NewInvitationToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed", "code": "INTERNAL"})
	}
	inv := model.Invitation{
		Email: email, Token: token, Role: role, HospitalID: hospitalID,
		Permissions: req.Permissions, InvitedBy: middleware.UserID(c),
		ExpiresAt: time.Now().UTC().Add(model.InvitationTTL),
	}
	if err := h.Invitations.Create(ctx, &inv); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create invitation failed", "code": "INTERNAL"})
	}

	h.sendInvitationEmail(ctx, inv)
	uid := middleware.UserID(c)
	if err := h.Audit.Insert(ctx, model.AuditEvent{UserID: &uid, Action: model.AuditInvitationCreated, Detail: email}); err != nil {
		c.Logger().Errorf("audit: invitation create insert failed: %v", err)
	}

	return c.JSON(http.StatusCreated, toInvitationPart(inv))
}

// Resend rotates the token on a still-PENDING invitation and mails the new
// link; the previous token stops working immediately.
func (h *InvitationHandler) Resend(c echo.Context) error {
	inv, httpErr := h.loadScoped(c)
	if httpErr != nil {
		return httpErr
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token, err := utils.NewInvitationToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed", "code": "INTERNAL"})
	}
	expiresAt := time.Now().UTC().Add(model.InvitationTTL)
	if err := h.Invitations.Rotate(ctx, inv.ID, token, expiresAt); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "invitation is not pending", "code": "INVALID_STATE"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "resend failed", "code": "INTERNAL"})
	}
	inv.Token = token
	inv.ExpiresAt = expiresAt
	h.sendInvitationEmail(ctx, inv)

	return c.JSON(http.StatusOK, toInvitationPart(inv))
}

// Revoke transitions PENDING -> REVOKED.
func (h *InvitationHandler) Revoke(c echo.Context) error {
	inv, httpErr := h.loadScoped(c)
	if httpErr != nil {
		return httpErr
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Invitations.Revoke(ctx, inv.ID); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "invitation is not pending", "code": "INVALID_STATE"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed", "code": "INTERNAL"})
	}
	inv.Status = model.InvitationRevoked
	uid := middleware.UserID(c)
	if err := h.Audit.Insert(ctx, model.AuditEvent{UserID: &uid, Action: model.AuditInvitationRevoked, Detail: inv.Email}); err != nil {
		c.Logger().Errorf("audit: invitation revoke insert failed: %v", err)
	}

	return c.JSON(http.StatusOK, toInvitationPart(inv))
}

// List returns the caller's invitations: all they issued for super admins,
// their hospital's for hospital admins.
func (h *InvitationHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		invs []model.Invitation
		err  error
	)
	if middleware.Role(c) == model.RoleHospitalAdmin {
		actor, actorErr := h.Users.GetByID(ctx, middleware.UserID(c))
		if actorErr != nil || actor.HospitalID == nil {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "FORBIDDEN"})
		}
		invs, err = h.Invitations.ListByHospital(ctx, *actor.HospitalID)
	} else {
		invs, err = h.Invitations.ListByInviter(ctx, middleware.UserID(c))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	}
	out := make([]invitationPart, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationPart(inv))
	}
	return c.JSON(http.StatusOK, echo.Map{"invitations": out})
}

// Accept redeems an invitation token: user + profile + hospital link +
// status flip + refresh ledger row land in one transaction, then a session
// pair is returned. A second accept with the same token fails because the
// PENDING guard inside the transaction no longer matches.
func (h *InvitationHandler) Accept(c echo.Context) error {
	var req acceptInvitationReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body", "code": "VALIDATION"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	inv, err := h.Invitations.GetByToken(ctx, strings.TrimSpace(req.Token))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired invitation", "code": "INVALID_OR_EXPIRED_TOKEN"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	}
	if !inv.Acceptable(now) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired invitation", "code": "INVALID_OR_EXPIRED_TOKEN"})
	}

	mobile, err := utils.NormalizeMobile(req.Mobile)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mobile number", "code": "INVALID_PHONE"})
	}
	if err := utils.ValidatePasswordStrength(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be 8+ chars with upper, lower and digit", "code": "WEAK_PASSWORD"})
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash failed", "code": "INTERNAL"})
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}
	defer func() { _ = tx.Rollback() }()

	if taken, err := h.Users.ExistsByMobileTx(ctx, tx, mobile); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	} else if taken {
		return c.JSON(http.StatusConflict, echo.Map{"error": "mobile number already registered", "code": "DUPLICATE_MOBILE"})
	}

	email := inv.Email
	u := model.User{
		Email: &email, MobileNumber: mobile, PasswordHash: &hash,
		Role: inv.Role, Status: model.StatusActive, HospitalID: inv.HospitalID,
	}
	if err := h.Users.CreateTx(ctx, tx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicateMobile) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "mobile number already registered", "code": "DUPLICATE_MOBILE"})
		}
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered", "code": "DUPLICATE_EMAIL"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}

	profile, err := repository.NewProfileForRole(inv.Role, u.ID,
		strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), inv.HospitalID, inv.Permissions)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}
	if err := h.Profiles.CreateTx(ctx, tx, profile); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}

	if inv.HospitalID != nil && inv.Role == model.RoleHospitalAdmin {
		if err := h.Hospitals.SetAdminTx(ctx, tx, *inv.HospitalID, u.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
		}
	}

	if err := h.Invitations.MarkAcceptedTx(ctx, tx, inv.ID, now); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired invitation", "code": "INVALID_OR_EXPIRED_TOKEN"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}

	payload := utils.TokenPayload{UserID: u.ID, UserType: u.Role, Mobile: u.MobileNumber}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, payload, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "INTERNAL"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.JWTSecret, payload, h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed", "code": "INTERNAL"})
	}
	if err := h.Tokens.StoreTx(ctx, tx, model.RefreshToken{
		ID: refresh.JTI, UserID: u.ID, TokenHash: utils.HashToken(refresh.Token), ExpiresAt: refresh.Exp,
	}); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}

	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "accept failed", "code": "INTERNAL"})
	}

	// Committed: notification and audit are best-effort from here.
	if err := h.Email.Send(ctx, inv.Email, "Welcome aboard",
		"<p>Your account is ready. You are signed in on this device.</p>"); err != nil {
		c.Logger().Errorf("invitation: welcome email failed: %v", err)
	}
	if err := h.Audit.Insert(ctx, model.AuditEvent{UserID: &u.ID, Action: model.AuditInvitationAccepted, Detail: inv.Email}); err != nil {
		c.Logger().Errorf("audit: invitation accept insert failed: %v", err)
	}

	h.setRefreshCookieFor(c, refresh.Token, refresh.Exp)
	return c.JSON(http.StatusCreated, sessionResp{
		User:        toUserPart(u),
		AccessToken: access.Token,
		ExpiresAt:   access.Exp.Format(time.RFC3339),
	})
}

// loadScoped fetches the invitation in the path param and enforces tenant
// scope: hospital admins only see invitations for their hospital, surfaced
// as 404 so existence is not leaked across tenants.
func (h *InvitationHandler) loadScoped(c echo.Context) (model.Invitation, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return model.Invitation{}, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id", "code": "VALIDATION"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Invitations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Invitation{}, c.JSON(http.StatusNotFound, echo.Map{"error": "invitation not found", "code": "NOT_FOUND"})
	}
	if err != nil {
		return model.Invitation{}, c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	}
	if middleware.Role(c) == model.RoleHospitalAdmin {
		actor, actorErr := h.Users.GetByID(ctx, middleware.UserID(c))
		if actorErr != nil || actor.HospitalID == nil ||
			inv.HospitalID == nil || *inv.HospitalID != *actor.HospitalID {
			return model.Invitation{}, c.JSON(http.StatusNotFound, echo.Map{"error": "invitation not found", "code": "NOT_FOUND"})
		}
	}
	return inv, nil
}

func (h *InvitationHandler) sendInvitationEmail(ctx context.Context, inv model.Invitation) {
	link := h.Cfg.InviteBaseURL + "/invitations/accept?token=" + inv.Token
	html := "<p>You have been invited to join as " + inv.Role +
		". The link expires in 7 days.</p><p><a href=\"" + link + "\">Accept invitation</a></p>"
	if err := h.Email.Send(ctx, inv.Email, "You are invited", html); err != nil {
		log.Printf("invitation: email to %s failed: %v", inv.Email, err)
	}
}

// setRefreshCookieFor mirrors AuthHandler's cookie settings so both issue
// paths stay in sync.
func (h *InvitationHandler) setRefreshCookieFor(c echo.Context, token string, exp time.Time) {
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
