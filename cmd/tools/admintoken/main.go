package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/championcart/backend/internal/auth"
	"github.com/championcart/backend/internal/config"
)

// admintoken mints a bearer token for the admin endpoints, signed with JWT_SECRET.
func main() {
	var (
		subject = flag.String("sub", "ops", "token subject")
		role    = flag.String("role", auth.RoleAdmin, "role claim")
		ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.AdminEnabled() {
		log.Fatal("JWT_SECRET is required")
	}
	tokens, err := auth.NewTokens(auth.TokensConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("init tokens: %v", err)
	}
	token, err := tokens.Issue(*subject, *role, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
