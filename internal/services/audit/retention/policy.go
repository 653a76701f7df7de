package retention

import (
	"fmt"
	"time"

	"github.com/louisbranch/certtrail/internal/platform/config"
	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
)

// Policy defines how long each classification bucket of audit entries is
// retained, and how the cleanup sweep behaves. Reconfiguration only affects
// entries appended afterwards; stamped archive dates never change.
type Policy struct {
	DefaultRetentionDays          int  `env:"CERTTRAIL_RETENTION_DEFAULT_DAYS" envDefault:"90"`
	SecurityEventRetentionDays    int  `env:"CERTTRAIL_RETENTION_SECURITY_DAYS" envDefault:"365"`
	CertificateEventRetentionDays int  `env:"CERTTRAIL_RETENTION_CERTIFICATE_DAYS" envDefault:"730"`
	ArchiveBeforeDelete           bool `env:"CERTTRAIL_RETENTION_ARCHIVE_BEFORE_DELETE" envDefault:"true"`
	CleanupBatchSize              int  `env:"CERTTRAIL_RETENTION_CLEANUP_BATCH_SIZE" envDefault:"1000"`
	AutoCleanupEnabled            bool `env:"CERTTRAIL_RETENTION_AUTO_CLEANUP" envDefault:"true"`
}

// DefaultPolicy returns the documented default retention policy.
func DefaultPolicy() Policy {
	return Policy{
		DefaultRetentionDays:          90,
		SecurityEventRetentionDays:    365,
		CertificateEventRetentionDays: 730,
		ArchiveBeforeDelete:           true,
		CleanupBatchSize:              1000,
		AutoCleanupEnabled:            true,
	}
}

// PolicyFromEnv loads the retention policy from environment variables.
func PolicyFromEnv() (Policy, error) {
	var p Policy
	if err := config.ParseEnv(&p); err != nil {
		return Policy{}, fmt.Errorf("parse retention env: %w", err)
	}
	if p.CleanupBatchSize <= 0 {
		return Policy{}, fmt.Errorf("cleanup batch size must be greater than zero")
	}
	return p, nil
}

// RetentionDays returns the retention-day count for an event type's bucket.
func (p Policy) RetentionDays(eventType entry.Type) int {
	switch Classify(eventType) {
	case BucketSecurity:
		return p.SecurityEventRetentionDays
	case BucketCertificate:
		return p.CertificateEventRetentionDays
	default:
		return p.DefaultRetentionDays
	}
}

// CalculateArchiveDate classifies eventType and adds the bucket's
// retention-day count to createdAt. Implements storage.ArchivePolicy.
func (p Policy) CalculateArchiveDate(eventType entry.Type, createdAt time.Time) time.Time {
	return createdAt.UTC().AddDate(0, 0, p.RetentionDays(eventType))
}
