package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arohealth/hospital-auth/internal/middleware"
	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/utils"
)

const secret = "test-secret"

func protectedApp(roles ...string) *echo.Echo {
	e := echo.New()
	mws := []echo.MiddlewareFunc{middleware.JWTAuth(secret)}
	if len(roles) > 0 {
		mws = append(mws, middleware.RequireRole(roles...))
	}
	e.GET("/protected", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"user_id": middleware.UserID(c),
			"role":    middleware.Role(c),
		})
	}, mws...)
	return e
}

func get(e *echo.Echo, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth_InjectsClaims(t *testing.T) {
	e := protectedApp()
	tok, err := utils.NewAccessToken(secret,
		utils.TokenPayload{UserID: 7, UserType: model.RoleDoctor, Mobile: "+919876543210"}, 15)
	require.NoError(t, err)

	rec := get(e, "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"DOCTOR"}`, rec.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
	e := protectedApp()

	rec := get(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(e, "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(e, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh tokens are not valid bearers.
	refresh, err := utils.NewRefreshToken(secret,
		utils.TokenPayload{UserID: 7, UserType: model.RoleDoctor, Mobile: "+919876543210"}, 30)
	require.NoError(t, err)
	rec = get(e, "Bearer "+refresh.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	e := protectedApp(model.RoleSuperAdmin, model.RoleHospitalAdmin)

	mint := func(role string) string {
		tok, err := utils.NewAccessToken(secret,
			utils.TokenPayload{UserID: 7, UserType: role, Mobile: "+919876543210"}, 15)
		require.NoError(t, err)
		return tok.Token
	}

	rec := get(e, "Bearer "+mint(model.RoleHospitalAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(e, "Bearer "+mint(model.RolePatient))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
}
