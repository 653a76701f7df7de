package signing

import (
	"context"
	"crypto/hmac"
	"fmt"
	"strings"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
)

// Service attaches and verifies entry signatures through an optional Signer.
//
// An unconfigured service (nil signer) is a valid state: appends degrade to
// the empty signature and verification reports the key as unavailable.
type Service struct {
	signer Signer
}

// NewService wraps a signer resolved at startup. Passing nil yields the
// explicit unconfigured state.
func NewService(signer Signer) *Service {
	return &Service{signer: signer}
}

// IsConfigured reports whether signing key material is available.
func (s *Service) IsConfigured() bool {
	return s != nil && s.signer != nil
}

// KeyFingerprint returns the active key identifier, or "" when unconfigured.
func (s *Service) KeyFingerprint() string {
	if !s.IsConfigured() {
		return ""
	}
	return s.signer.KeyFingerprint()
}

// GenerateSignature computes the entry's authentication tag. It returns ""
// without error when signing is unconfigured; a signer failure is returned
// so the caller can decide to degrade.
func (s *Service) GenerateSignature(ctx context.Context, e entry.Entry) (string, error) {
	if !s.IsConfigured() {
		return "", nil
	}
	payload, err := entry.SignPayload(e)
	if err != nil {
		return "", fmt.Errorf("encode sign payload: %w", err)
	}
	sig, err := s.signer.Sign(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("sign entry: %w", err)
	}
	return sig, nil
}

// Verification reports the outcome of checking a single entry's signature.
type Verification struct {
	Valid        bool
	EntryID      int64
	ErrorMessage string
}

// VerifySignature recomputes the expected signature for e and compares it
// against the stored one.
func (s *Service) VerifySignature(ctx context.Context, e entry.Entry) Verification {
	if strings.TrimSpace(e.Signature) == "" {
		return Verification{EntryID: e.ID, ErrorMessage: "no signature"}
	}
	if !s.IsConfigured() {
		return Verification{EntryID: e.ID, ErrorMessage: "HMAC key not available"}
	}
	payload, err := entry.SignPayload(e)
	if err != nil {
		return Verification{EntryID: e.ID, ErrorMessage: fmt.Sprintf("encode sign payload: %v", err)}
	}
	expected, err := s.signer.Sign(ctx, payload)
	if err != nil {
		return Verification{EntryID: e.ID, ErrorMessage: fmt.Sprintf("recompute signature: %v", err)}
	}
	if !hmac.Equal([]byte(expected), []byte(e.Signature)) {
		return Verification{EntryID: e.ID, ErrorMessage: "signature mismatch: entry appears tampered"}
	}
	return Verification{Valid: true, EntryID: e.ID}
}

// BatchVerification aggregates signature checks over a range of entries.
type BatchVerification struct {
	Valid          bool
	EntriesChecked int
	InvalidEntries []Verification
}

// VerifyBatch verifies each entry independently. EntriesChecked counts only
// entries that were actually verifiable; it stays 0 when unconfigured.
func (s *Service) VerifyBatch(ctx context.Context, entries []entry.Entry) BatchVerification {
	result := BatchVerification{Valid: true}
	if !s.IsConfigured() {
		return result
	}
	for _, e := range entries {
		v := s.VerifySignature(ctx, e)
		result.EntriesChecked++
		if !v.Valid {
			result.InvalidEntries = append(result.InvalidEntries, v)
		}
	}
	result.Valid = len(result.InvalidEntries) == 0
	return result
}
