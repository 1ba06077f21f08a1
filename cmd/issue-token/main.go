// Command issue-token mints an operator token pair for the dashboard API.
//
//	issue-token -user ops-1 -role operator
//
// JWT_SECRET, JWT_ISSUER and JWT_AUDIENCE are read from the environment or .env,
// and must match the API process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"voicebot/internal/auth"
	"voicebot/internal/config"
	"voicebot/internal/rbac"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token")
	role := flag.String("role", rbac.RoleOperator, "admin, operator or viewer")
	accessTTL := flag.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	refreshTTL := flag.Duration("refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if strings.TrimSpace(*userID) == "" {
		fail("-user is required")
	}
	if !rbac.Known(*role) {
		fail(fmt.Sprintf("unknown role %q", *role))
	}

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience:     strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		AccessTokenTTL:  *accessTTL,
		RefreshTokenTTL: *refreshTTL,
	})
	if err != nil {
		fail(err.Error())
	}
	pair, err := m.IssuePair(time.Now(), *userID, *role)
	if err != nil {
		fail(err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]string{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func fail(msg string) {
	slog.Error("issue-token", "err", msg)
	os.Exit(2)
}
