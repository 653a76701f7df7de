package signing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/certtrail/internal/platform/config"
	"github.com/louisbranch/certtrail/internal/platform/timeouts"
)

const envProduction = "production"

type signingEnv struct {
	Environment string `env:"CERTTRAIL_ENV" envDefault:"development"`
	Secret      string `env:"CERTTRAIL_AUDIT_HMAC_SECRET"`
	KMSEnabled  bool   `env:"CERTTRAIL_KMS_ENABLED"`
	KMSEndpoint string `env:"CERTTRAIL_KMS_ENDPOINT"`
	KMSKeyID    string `env:"CERTTRAIL_KMS_KEY_ID"`
}

// ServiceFromEnv resolves the signing backend once at startup.
//
// Resolution order: delegated provider when enabled, then the local secret,
// then an ephemeral in-memory secret outside production. In production with
// neither configured, signing is disabled rather than crashing startup.
func ServiceFromEnv() (*Service, error) {
	var raw signingEnv
	if err := config.ParseEnv(&raw); err != nil {
		return nil, fmt.Errorf("parse signing env: %w", err)
	}
	return resolveService(raw)
}

func resolveService(raw signingEnv) (*Service, error) {
	if raw.KMSEnabled {
		signer, err := NewKMSSigner(raw.KMSEndpoint, raw.KMSKeyID, timeouts.KMSRequest)
		if err != nil {
			return nil, fmt.Errorf("configure kms signer: %w", err)
		}
		return NewService(signer), nil
	}

	secret := strings.TrimSpace(raw.Secret)
	if secret != "" {
		key := DecodeSecret(secret)
		if len(key) < RecommendedSecretBytes {
			log.Printf("audit signing secret is shorter than %d bytes; accepting weak key", RecommendedSecretBytes)
		}
		signer, err := NewLocalSigner(key)
		if err != nil {
			return nil, fmt.Errorf("configure local signer: %w", err)
		}
		return NewService(signer), nil
	}

	if strings.EqualFold(strings.TrimSpace(raw.Environment), envProduction) {
		log.Printf("no audit signing secret configured in production; entries will be unsigned")
		return NewService(nil), nil
	}

	key := make([]byte, RecommendedSecretBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
	}
	log.Printf("generated ephemeral audit signing key (fingerprint %s); signatures will not verify across restarts", Fingerprint(key))
	signer, err := NewLocalSigner(key)
	if err != nil {
		return nil, err
	}
	return NewService(signer), nil
}

// DecodeSecret interprets a configured secret as standard base64, falling
// back to the raw bytes when decoding fails. A typo'd secret therefore
// degrades to an opaque key instead of refusing to start.
func DecodeSecret(secret string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err == nil && len(decoded) > 0 {
		return decoded
	}
	log.Printf("audit signing secret is not valid base64; using raw bytes")
	return []byte(secret)
}
