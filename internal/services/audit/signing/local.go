package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RecommendedSecretBytes is the minimum secret length that avoids a
// weak-key warning at startup.
const RecommendedSecretBytes = 32

// LocalSigner computes HMAC-SHA256 tags with a locally held secret.
type LocalSigner struct {
	key         []byte
	fingerprint string
}

// NewLocalSigner constructs a signer from raw secret bytes.
func NewLocalSigner(secret []byte) (*LocalSigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hmac secret is required")
	}
	return &LocalSigner{
		key:         secret,
		fingerprint: Fingerprint(secret),
	}, nil
}

// Sign returns the hex-encoded HMAC-SHA256 of payload.
func (s *LocalSigner) Sign(_ context.Context, payload []byte) (string, error) {
	if s == nil || len(s.key) == 0 {
		return "", fmt.Errorf("hmac secret is not configured")
	}
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// KeyFingerprint returns the non-secret identifier of the active key.
func (s *LocalSigner) KeyFingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}

// Fingerprint derives the operational display identifier for key material.
// It is a truncated digest, never the key itself.
func Fingerprint(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])[:16]
}
