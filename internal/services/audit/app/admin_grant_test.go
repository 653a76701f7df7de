package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func grantKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func signGrant(t *testing.T, priv ed25519.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign grant: %v", err)
	}
	return signed
}

func testGrantConfig(pub ed25519.PublicKey, now time.Time) *AdminGrantConfig {
	return &AdminGrantConfig{
		Issuer:   "certtrail-admin",
		Audience: "audit",
		Key:      pub,
		Now:      func() time.Time { return now },
	}
}

func validClaims(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    "certtrail-admin",
		Audience:  jwt.ClaimStrings{"audit"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
	}
}

func TestValidateGrantAccepted(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub, priv := grantKeyPair(t)
	cfg := testGrantConfig(pub, now)

	grant := signGrant(t, priv, validClaims(now))
	if err := cfg.validateGrant(grant); err != nil {
		t.Fatalf("validate grant: %v", err)
	}
}

func TestValidateGrantRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub, priv := grantKeyPair(t)
	_, otherPriv := grantKeyPair(t)
	cfg := testGrantConfig(pub, now)

	tests := []struct {
		name  string
		grant func() string
	}{
		{"empty grant", func() string { return "" }},
		{"garbage token", func() string { return "not-a-jwt" }},
		{"wrong key", func() string { return signGrant(t, otherPriv, validClaims(now)) }},
		{"wrong issuer", func() string {
			c := validClaims(now)
			c.Issuer = "someone-else"
			return signGrant(t, priv, c)
		}},
		{"wrong audience", func() string {
			c := validClaims(now)
			c.Audience = jwt.ClaimStrings{"other-service"}
			return signGrant(t, priv, c)
		}},
		{"missing exp", func() string {
			c := validClaims(now)
			c.ExpiresAt = nil
			return signGrant(t, priv, c)
		}},
		{"expired", func() string {
			c := validClaims(now)
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
			return signGrant(t, priv, c)
		}},
		{"not yet active", func() string {
			c := validClaims(now)
			c.NotBefore = jwt.NewNumericDate(now.Add(time.Hour))
			return signGrant(t, priv, c)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := cfg.validateGrant(tc.grant()); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestGrantMiddlewareGuardsAdminSurface(t *testing.T) {
	now := time.Now().UTC()
	pub, priv := grantKeyPair(t)
	cfg := testGrantConfig(pub, now)
	cfg.Now = time.Now

	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/v1/audit/statistics")
	if err != nil {
		t.Fatalf("get without grant: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without grant = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/audit/statistics", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+signGrant(t, priv, validClaims(now)))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with grant: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with grant = %d, want 200", resp.StatusCode)
	}

	// Health stays open without a grant.
	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestLoadAdminGrantConfigFromEnv(t *testing.T) {
	pub, _ := grantKeyPair(t)

	t.Run("disabled without key", func(t *testing.T) {
		t.Setenv("CERTTRAIL_ADMIN_GRANT_PUBLIC_KEY", "")
		cfg, err := LoadAdminGrantConfigFromEnv()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg != nil {
			t.Fatal("expected nil config without a public key")
		}
	})

	t.Run("requires issuer and audience", func(t *testing.T) {
		t.Setenv("CERTTRAIL_ADMIN_GRANT_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
		t.Setenv("CERTTRAIL_ADMIN_GRANT_ISSUER", "")
		t.Setenv("CERTTRAIL_ADMIN_GRANT_AUDIENCE", "audit")
		if _, err := LoadAdminGrantConfigFromEnv(); err == nil {
			t.Fatal("expected error for missing issuer")
		}
	})

	t.Run("loads full config", func(t *testing.T) {
		t.Setenv("CERTTRAIL_ADMIN_GRANT_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
		t.Setenv("CERTTRAIL_ADMIN_GRANT_ISSUER", "certtrail-admin")
		t.Setenv("CERTTRAIL_ADMIN_GRANT_AUDIENCE", "audit")
		cfg, err := LoadAdminGrantConfigFromEnv()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg == nil || cfg.Issuer != "certtrail-admin" || cfg.Audience != "audit" {
			t.Fatalf("config = %+v", cfg)
		}
		if len(cfg.Key) != ed25519.PublicKeySize {
			t.Fatalf("key size = %d", len(cfg.Key))
		}
	})

	t.Run("rejects short key", func(t *testing.T) {
		t.Setenv("CERTTRAIL_ADMIN_GRANT_PUBLIC_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
		t.Setenv("CERTTRAIL_ADMIN_GRANT_ISSUER", "certtrail-admin")
		t.Setenv("CERTTRAIL_ADMIN_GRANT_AUDIENCE", "audit")
		if _, err := LoadAdminGrantConfigFromEnv(); err == nil {
			t.Fatal("expected error for short key")
		}
	})
}
