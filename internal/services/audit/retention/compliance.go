package retention

import (
	"context"
	"fmt"
)

// Compliance status levels, ordered from best to worst.
const (
	StatusCompliant      = "compliant"
	StatusNeedsAttention = "needs-attention"
	StatusNonCompliant   = "non-compliant"
)

// Minimum retention-day floors the compliance check enforces.
const (
	minDefaultRetentionDays     = 90
	minSecurityRetentionDays    = 365
	minCertificateRetentionDays = 730
	backlogBatchMultiple        = 10
)

// ComplianceReport summarizes how the active policy and backlog measure up
// against the retention rules.
type ComplianceReport struct {
	Policy           Policy
	Statistics       CleanupStatistics
	ComplianceStatus string
	Recommendations  []string
}

// GenerateComplianceReport derives a three-level status from policy values
// and backlog size, with one recommendation per violated rule.
func (s *Service) GenerateComplianceReport(ctx context.Context) (ComplianceReport, error) {
	stats, err := s.GetCleanupStatistics(ctx)
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{
		Policy:           s.policy,
		Statistics:       stats,
		ComplianceStatus: StatusCompliant,
	}

	if s.policy.DefaultRetentionDays < minDefaultRetentionDays {
		report.escalate(StatusNonCompliant)
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"default retention is %d days; raise it to at least %d days to meet the minimum retention floor",
			s.policy.DefaultRetentionDays, minDefaultRetentionDays))
	}
	if s.policy.SecurityEventRetentionDays < minSecurityRetentionDays {
		report.escalate(StatusNeedsAttention)
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"security event retention is %d days; %d days is the recommended minimum for access audits",
			s.policy.SecurityEventRetentionDays, minSecurityRetentionDays))
	}
	if s.policy.CertificateEventRetentionDays < minCertificateRetentionDays {
		report.escalate(StatusNeedsAttention)
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"certificate event retention is %d days; %d days is the recommended minimum for issued certificates",
			s.policy.CertificateEventRetentionDays, minCertificateRetentionDays))
	}
	if !s.policy.AutoCleanupEnabled {
		report.escalate(StatusNeedsAttention)
		report.Recommendations = append(report.Recommendations,
			"auto-cleanup is disabled; expired entries will accumulate until a manual sweep runs")
	}
	if stats.PendingArchival > int64(backlogBatchMultiple*s.policy.CleanupBatchSize) {
		report.escalate(StatusNeedsAttention)
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"%d entries are pending archival, more than %d sweep batches; run a manual cleanup or raise the batch size",
			stats.PendingArchival, backlogBatchMultiple))
	}

	return report, nil
}

// escalate raises the report status, never lowering it.
func (r *ComplianceReport) escalate(status string) {
	if r.ComplianceStatus == StatusNonCompliant {
		return
	}
	if status == StatusNonCompliant || r.ComplianceStatus == StatusCompliant {
		r.ComplianceStatus = status
	}
}
