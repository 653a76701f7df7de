package retention

import "github.com/louisbranch/certtrail/internal/services/audit/domain/entry"

// Bucket is a retention classification for audit event types.
type Bucket string

const (
	// BucketDefault covers ordinary business events.
	BucketDefault Bucket = "default"
	// BucketSecurity covers authentication and authorization events, which
	// compliance regimes keep longer than ordinary activity.
	BucketSecurity Bucket = "security"
	// BucketCertificate covers certificate lifecycle and review outcomes,
	// the longest-lived trail in the system.
	BucketCertificate Bucket = "certificate"
)

// securityEventTypes is the static membership set for the security bucket.
var securityEventTypes = map[entry.Type]struct{}{
	entry.TypeUserLogin:         {},
	entry.TypeUserLogout:        {},
	entry.TypeLoginFailed:       {},
	entry.TypePasswordChanged:   {},
	entry.TypePermissionChanged: {},
	entry.TypeRoleAssigned:      {},
	entry.TypeRoleRevoked:       {},
}

// certificateEventTypes is the static membership set for the certificate bucket.
var certificateEventTypes = map[entry.Type]struct{}{
	entry.TypeCertificateIssued:  {},
	entry.TypeCertificateRenewed: {},
	entry.TypeCertificateRevoked: {},
	entry.TypeSubmissionApproved: {},
	entry.TypeSubmissionRejected: {},
	entry.TypeTemplatePublished:  {},
}

// Classify maps an event type to its retention bucket. Unknown types fall
// into the default bucket.
func Classify(eventType entry.Type) Bucket {
	if _, ok := securityEventTypes[eventType]; ok {
		return BucketSecurity
	}
	if _, ok := certificateEventTypes[eventType]; ok {
		return BucketCertificate
	}
	return BucketDefault
}
