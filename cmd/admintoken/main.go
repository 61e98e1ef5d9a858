// Command admintoken prints a bearer token for the admin HTTP API.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/membo/vtubot/core/app"
	"github.com/membo/vtubot/core/auth"
	"github.com/membo/vtubot/core/bootstrap"
	"github.com/membo/vtubot/core/cmd"
	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/security"
	"github.com/membo/vtubot/core/session"
	"github.com/membo/vtubot/core/users"
)

func main() {
	if err := cmd.Run(cmd.Options{
		DefaultConfigPath: "configs/config.yaml",
		Run:               issue,
	}); err != nil {
		log.Fatal(err)
	}
}

func issue(ctx context.Context, cfg *config.Config) error {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer infra.Close()

	userStore := users.NewStore(infra.DB)
	sessions := session.NewStore(infra.DB)
	authFlow := auth.NewFlow(sessions, userStore, auth.NewBcryptHasher(cfg.Security.BcryptCost), cfg.Admin.Phone)
	if err := app.ProvisionAdmin(sessions, authFlow, cfg.Admin.Phone).Seed(ctx); err != nil {
		return err
	}
	admin, err := userStore.FindByPhone(ctx, cfg.Admin.Phone)
	if err != nil {
		return err
	}

	tokens := security.NewTokens(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL())
	token, err := tokens.Issue(admin)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
