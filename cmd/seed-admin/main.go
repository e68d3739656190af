// Command seed-admin bootstraps the initial SUPER_ADMIN account. Every
// other staff account descends from an invitation issued by this one.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/arohealth/hospital-auth/internal/config"
	"github.com/arohealth/hospital-auth/internal/database"
	"github.com/arohealth/hospital-auth/internal/model"
	"github.com/arohealth/hospital-auth/internal/repository"
	"github.com/arohealth/hospital-auth/internal/utils"
)

func main() {
	var (
		email    = flag.String("email", "", "super admin email")
		mobile   = flag.String("mobile", "", "super admin mobile number")
		password = flag.String("password", "", "super admin password")
	)
	flag.Parse()
	if *email == "" || *mobile == "" || *password == "" {
		log.Fatal("usage: seed-admin -email ... -mobile ... -password ...")
	}

	_ = godotenv.Load()
	cfg := config.Load()

	normMobile, err := utils.NormalizeMobile(*mobile)
	if err != nil {
		log.Fatalf("mobile: %v", err)
	}
	if err := utils.ValidatePasswordStrength(*password); err != nil {
		log.Fatalf("password: %v", err)
	}
	hash, err := utils.HashPassword(*password, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := repository.NewUserRepo(db)
	u := model.User{
		Email:        email,
		MobileNumber: normMobile,
		PasswordHash: &hash,
		Role:         model.RoleSuperAdmin,
		Status:       model.StatusActive,
	}
	if err := users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateMobile) {
			log.Fatalf("super admin already exists: %v", err)
		}
		log.Fatalf("create: %v", err)
	}
	log.Printf("super admin created: id=%d email=%s", u.ID, *email)
}
