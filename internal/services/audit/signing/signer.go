package signing

import "context"

// Signer computes message-authentication tags over canonical payloads.
//
// Implementations are selected once at startup: a local HMAC secret, or a
// delegated external key-management provider. Callers depend only on this
// interface.
type Signer interface {
	// Sign returns the hex-encoded authentication tag for payload.
	Sign(ctx context.Context, payload []byte) (string, error)
	// KeyFingerprint returns a short, stable, non-secret identifier for the
	// active key material (16 hex characters).
	KeyFingerprint() string
}
