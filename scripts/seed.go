//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/pkg/config"
	"github.com/nexura/nexura-api/pkg/util"
)

// Seeds a development database with one current-format hub owner and a pair
// of legacy accounts (plaintext password, no organization) that the
// reconciler repairs on their first sign-in.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	st := store.New(db)
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:       st,
		Hasher:      auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:      auth.NewJWTService(cfg.JWT.Secret, auth.DefaultTokenTTLs()),
		Invitations: auth.NewInvitationService(st, mail.NewLogSender(logger), cfg.Auth.InviteTTL(), logger),
		Reconciler:  auth.NewReconciler(st, nil, logger),
		Mailer:      mail.NewLogSender(logger),
		Logger:      logger,
		ClientURL:   cfg.Server.ClientURL,
	})
	if err != nil {
		log.Fatalf("failed to create auth service: %v", err)
	}

	email := os.Getenv("SEED_EMAIL")
	password := os.Getenv("SEED_PASSWORD")
	if email == "" {
		email = "owner@nexura.local"
	}
	if password == "" {
		password = "nexura123!"
	}

	session, err := svc.SignUp(context.Background(), auth.SignUpInput{
		Kind:     models.OrgKindHub,
		Name:     "Nexura Dev Hub",
		Email:    email,
		Password: password,
	})
	var dup *store.DuplicateKeyError
	switch {
	case errors.As(err, &dup):
		fmt.Printf("Hub owner already exists: %s\n", email)
	case err != nil:
		log.Fatalf("failed to create hub owner: %v", err)
	default:
		fmt.Printf("Hub owner created: %s (account %s)\n", session.Account.Email, session.Account.ID)
	}

	// Legacy rows bypass the service on purpose: plaintext password, no link.
	legacy := []models.Account{
		{Variant: models.VariantHubSuperAdmin, Email: "legacy-hub@nexura.local", Name: "Legacy Hub"},
		{Variant: models.VariantProjectOwner, Email: "legacy-project@nexura.local", Name: "Legacy Project"},
	}
	for i := range legacy {
		account := &legacy[i]
		account.ID = uuid.New()
		account.PasswordHash = password
		account.Role = account.Variant.OrgKind().OwnerRole()

		err := st.CreateAccount(context.Background(), account)
		switch {
		case store.IsDuplicateKey(err):
			fmt.Printf("Legacy account already exists: %s\n", account.Email)
		case err != nil:
			log.Fatalf("failed to create legacy account %s: %v", account.Email, err)
		default:
			fmt.Printf("Legacy account created: %s (%s)\n", account.Email, account.Variant)
		}
	}
}
