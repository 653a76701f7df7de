package app

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/certtrail/internal/platform/config"
	apperrors "github.com/louisbranch/certtrail/internal/platform/errors"
)

// adminGrantEnv holds raw env values before post-parse validation.
type adminGrantEnv struct {
	Issuer    string `env:"CERTTRAIL_ADMIN_GRANT_ISSUER"`
	Audience  string `env:"CERTTRAIL_ADMIN_GRANT_AUDIENCE"`
	PublicKey string `env:"CERTTRAIL_ADMIN_GRANT_PUBLIC_KEY"`
}

// AdminGrantConfig defines how admin grants are verified.
type AdminGrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// LoadAdminGrantConfigFromEnv reads admin grant verification configuration.
// Returns nil when no public key is configured, which disables grant
// checking on the admin surface.
func LoadAdminGrantConfigFromEnv() (*AdminGrantConfig, error) {
	var raw adminGrantEnv
	if err := config.ParseEnv(&raw); err != nil {
		return nil, fmt.Errorf("parse admin grant env: %w", err)
	}
	publicKey := strings.TrimSpace(raw.PublicKey)
	if publicKey == "" {
		return nil, nil
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	if issuer == "" {
		return nil, fmt.Errorf("CERTTRAIL_ADMIN_GRANT_ISSUER is required")
	}
	if audience == "" {
		return nil, fmt.Errorf("CERTTRAIL_ADMIN_GRANT_AUDIENCE is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decode admin grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("admin grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &AdminGrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      time.Now,
	}, nil
}

// Middleware rejects requests without a valid admin grant bearer token.
func (c *AdminGrantConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if err := c.validateGrant(token); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (c *AdminGrantConfig) validateGrant(grant string) error {
	if strings.TrimSpace(grant) == "" {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant is required")
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	var parsed jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return c.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != c.Issuer {
		return apperrors.WithMetadata(
			apperrors.CodeAdminGrantInvalid,
			"admin grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, c.Audience) {
		return apperrors.WithMetadata(
			apperrors.CodeAdminGrantInvalid,
			"admin grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant exp is required")
	}
	if !parsed.ExpiresAt.Time.UTC().After(now().UTC()) {
		return apperrors.New(apperrors.CodeAdminGrantExpired, "admin grant is expired")
	}
	if parsed.NotBefore != nil && now().UTC().Before(parsed.NotBefore.Time.UTC()) {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant not active yet")
	}
	return nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeAdminGrantInvalid, "admin grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
