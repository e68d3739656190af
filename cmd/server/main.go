package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/arohealth/hospital-auth/internal/config"
	"github.com/arohealth/hospital-auth/internal/database"
	"github.com/arohealth/hospital-auth/internal/gateway"
	"github.com/arohealth/hospital-auth/internal/handler"
	"github.com/arohealth/hospital-auth/internal/jobs"
	"github.com/arohealth/hospital-auth/internal/middleware"
	"github.com/arohealth/hospital-auth/internal/queue"
	"github.com/arohealth/hospital-auth/internal/repository"
	"github.com/arohealth/hospital-auth/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env always wins

	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	otps := repository.NewOTPRepo(db)
	invitations := repository.NewInvitationRepo(db)
	profiles := repository.NewProfileRepo(db)
	hospitals := repository.NewHospitalRepo(db)
	audit := repository.NewAuditRepo(db)

	sms := gateway.LogSMSGateway{}
	email := gateway.LogEmailGateway{}

	authH := handler.NewAuthHandler(cfg, users, tokens, otps, profiles, audit, sms)
	invH := handler.NewInvitationHandler(cfg, db, users, tokens, invitations, profiles, hospitals, audit, email)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, limiter, cfg.JWTSecret)
	router.RegisterInvitations(e, invH, cfg.JWTSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs.StartRetentionSweeper(ctx, jobs.RetentionConfig{
		Interval: time.Hour,
		Grace:    24 * time.Hour,
	}, otps, tokens, invitations)

	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
