package app

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/louisbranch/certtrail/internal/platform/errors"
	"github.com/louisbranch/certtrail/internal/services/audit/retention"
)

func (s *Server) handleRetentionPolicy(w http.ResponseWriter, _ *http.Request) {
	p := s.retention.Policy()
	writeJSON(w, http.StatusOK, map[string]any{
		"defaultRetentionDays":          p.DefaultRetentionDays,
		"securityEventRetentionDays":    p.SecurityEventRetentionDays,
		"certificateEventRetentionDays": p.CertificateEventRetentionDays,
		"archiveBeforeDelete":           p.ArchiveBeforeDelete,
		"cleanupBatchSize":              p.CleanupBatchSize,
		"autoCleanupEnabled":            p.AutoCleanupEnabled,
	})
}

func (s *Server) handleRetentionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retention.GetCleanupStatistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pendingArchival":   stats.PendingArchival,
		"oldestPendingDate": stats.OldestPendingDate,
		"byEventType":       stats.ByEventType,
	})
}

func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.retention.GenerateComplianceReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	recommendations := report.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy": map[string]any{
			"defaultRetentionDays":          report.Policy.DefaultRetentionDays,
			"securityEventRetentionDays":    report.Policy.SecurityEventRetentionDays,
			"certificateEventRetentionDays": report.Policy.CertificateEventRetentionDays,
			"archiveBeforeDelete":           report.Policy.ArchiveBeforeDelete,
			"cleanupBatchSize":              report.Policy.CleanupBatchSize,
			"autoCleanupEnabled":            report.Policy.AutoCleanupEnabled,
		},
		"statistics": map[string]any{
			"pendingArchival":   report.Statistics.PendingArchival,
			"oldestPendingDate": report.Statistics.OldestPendingDate,
			"byEventType":       report.Statistics.ByEventType,
		},
		"complianceStatus": report.ComplianceStatus,
		"recommendations":  recommendations,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := retention.CleanupOptions{
		DryRun: q.Get("dryRun") == "true",
	}
	if v := q.Get("batchSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			writeError(w, apperrors.New(apperrors.CodeRetentionInvalidBatch, "batchSize must be a positive integer"))
			return
		}
		opts.BatchSize = size
	}

	result := s.retention.PerformCleanup(r.Context(), opts)
	if errors.Is(result.Err, retention.ErrSweepInProgress) {
		writeError(w, apperrors.New(apperrors.CodeRetentionSweepRunning, result.ErrorMessage))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runId":           result.RunID,
		"success":         result.Success,
		"dryRun":          result.DryRun,
		"archivedCount":   result.ArchivedCount,
		"deletedCount":    result.DeletedCount,
		"errorMessage":    result.ErrorMessage,
		"executionTimeMs": result.ExecutionTimeMs,
	})
}
