package signing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/certtrail/internal/platform/timeouts"
)

// KMSSigner delegates tag computation to an external key-management
// provider's HMAC endpoint. The provider holds the key; this process never
// sees the secret material.
type KMSSigner struct {
	endpoint    string
	keyID       string
	client      *http.Client
	fingerprint string
}

type kmsRequest struct {
	KeyID   string `json:"keyId,omitempty"`
	Payload string `json:"payload"`
}

type kmsResponse struct {
	Signature string `json:"signature"`
}

// NewKMSSigner constructs a delegated signer for the provider endpoint.
// Calls are bounded by timeout so append availability never depends on the
// provider's liveness.
func NewKMSSigner(endpoint, keyID string, timeout time.Duration) (*KMSSigner, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("kms endpoint is required")
	}
	if timeout <= 0 {
		timeout = timeouts.KMSRequest
	}
	fingerprintInput := endpoint
	if strings.TrimSpace(keyID) != "" {
		fingerprintInput = endpoint + "#" + strings.TrimSpace(keyID)
	}
	sum := sha256.Sum256([]byte(fingerprintInput))
	return &KMSSigner{
		endpoint:    endpoint,
		keyID:       strings.TrimSpace(keyID),
		client:      &http.Client{Timeout: timeout},
		fingerprint: hex.EncodeToString(sum[:])[:16],
	}, nil
}

// Sign submits payload to the provider and returns its signature verbatim.
func (s *KMSSigner) Sign(ctx context.Context, payload []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("kms signer is not configured")
	}
	body, err := json.Marshal(kmsRequest{KeyID: s.keyID, Payload: string(payload)})
	if err != nil {
		return "", fmt.Errorf("marshal kms request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build kms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call kms provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("kms provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded kmsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode kms response: %w", err)
	}
	if strings.TrimSpace(decoded.Signature) == "" {
		return "", fmt.Errorf("kms provider returned an empty signature")
	}
	return decoded.Signature, nil
}

// KeyFingerprint returns the non-secret identifier of the delegated key.
func (s *KMSSigner) KeyFingerprint() string {
	if s == nil {
		return ""
	}
	return s.fingerprint
}
