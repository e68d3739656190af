// Package router wires HTTP routes to handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/arohealth/hospital-auth/internal/handler"
	"github.com/arohealth/hospital-auth/internal/middleware"
	"github.com/arohealth/hospital-auth/internal/model"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session endpoints. The rate limiter guards the
// abuse-prone entry points (OTP send, OTP verify, login); refresh and
// logout authenticate by cookie and stay unthrottled. Setup requires the
// temp bearer from OTP verification, so it sits behind the JWT guard with a
// PATIENT role check.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/otp/send", a.SendOTP, limiter)
	g.POST("/otp/verify", a.VerifyOTP, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/setup", a.CompleteSetup,
		middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RolePatient))

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterInvitations registers the staff-onboarding endpoints. Accept is
// public (the mailed token is the credential); issuance, resend, revoke and
// listing require an admin bearer.
func RegisterInvitations(e *echo.Echo, h *handler.InvitationHandler, jwtSecret string) {
	e.POST("/v1/invitations/accept", h.Accept)

	g := e.Group("/v1/invitations")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleSuperAdmin, model.RoleHospitalAdmin))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.POST("/:id/resend", h.Resend)
	g.POST("/:id/revoke", h.Revoke)
}
