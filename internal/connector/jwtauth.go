package connector

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// serviceClaims is the minimal claim set a migration run signs when a
// target server is configured with a shared token secret instead of a
// static bearer token (SPEC_FULL.md's JWT auth path).
type serviceClaims struct {
	jwt.RegisteredClaims
	RunNamespace string `json:"run_namespace"`
}

// SignServiceToken mints a short-lived HS256 JWT identifying this migration
// run to a target server, for servers configured with token_secret instead
// of a pre-issued token (config.Server.TokenSecret). The run namespace UUID
// is embedded as a claim so the target can correlate retried requests back
// to one run.
func SignServiceToken(secret, runNamespace string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("token secret is empty")
	}

	now := time.Now()
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "journal-migrator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RunNamespace: runNamespace,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing service token: %w", err)
	}
	return signed, nil
}
