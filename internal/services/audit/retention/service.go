package retention

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

const tracerName = "certtrail/audit/retention"

// DefaultSweepInterval is how often the scheduled cleanup fires.
const DefaultSweepInterval = 24 * time.Hour

// ErrSweepInProgress reports an overlapping cleanup trigger.
var ErrSweepInProgress = errors.New("a cleanup run is already in progress")

// Service runs the retention sweep against the audit store.
type Service struct {
	policy Policy
	store  storage.RetentionStore
	tracer trace.Tracer
	now    func() time.Time

	// sweepMu guarantees a single cleanup job at a time; overlapping
	// triggers are rejected, not queued.
	sweepMu sync.Mutex
}

// NewService constructs the retention service for a policy and store.
func NewService(policy Policy, store storage.RetentionStore) *Service {
	return &Service{
		policy: policy,
		store:  store,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// WithClock overrides the sweep clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Policy returns the active retention policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// CleanupOptions tune a single PerformCleanup invocation.
type CleanupOptions struct {
	// DryRun reports what the sweep would do without mutating storage.
	DryRun bool
	// BatchSize overrides the policy batch size when greater than zero.
	BatchSize int
}

// CleanupResult is the structured outcome of one sweep run. Failures are
// reported here, never raised to a scheduler.
type CleanupResult struct {
	RunID           string
	Success         bool
	DryRun          bool
	ArchivedCount   int64
	DeletedCount    int64
	// Err is the typed failure for callers that branch on it; ErrorMessage
	// mirrors it for display.
	Err             error
	ErrorMessage    string
	ExecutionTimeMs int64
}

// PerformCleanup selects entries whose archive date has passed and, unless
// dry-running, archives then deletes them in one batch. On any storage
// error the whole run reports failure with zero counts.
func (s *Service) PerformCleanup(ctx context.Context, opts CleanupOptions) CleanupResult {
	result := CleanupResult{RunID: uuid.NewString(), DryRun: opts.DryRun}
	started := s.now()

	if !s.sweepMu.TryLock() {
		result.Err = ErrSweepInProgress
		result.ErrorMessage = ErrSweepInProgress.Error()
		return result
	}
	defer s.sweepMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "audit.PerformCleanup", trace.WithAttributes(
		attribute.String("audit.cleanup_run_id", result.RunID),
		attribute.Bool("audit.cleanup_dry_run", opts.DryRun),
	))
	defer span.End()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.policy.CleanupBatchSize
	}

	asOf := s.now().UTC()
	expired, err := s.store.ListExpired(ctx, asOf, batchSize)
	if err != nil {
		return s.failCleanup(result, started, fmt.Errorf("list expired entries: %w", err))
	}

	if opts.DryRun {
		count := int64(len(expired))
		result.Success = true
		if s.policy.ArchiveBeforeDelete {
			result.ArchivedCount = count
		}
		result.DeletedCount = count
		result.ExecutionTimeMs = s.elapsedMs(started)
		return result
	}

	if len(expired) > 0 {
		ids := make([]int64, len(expired))
		for i, e := range expired {
			ids[i] = e.ID
		}
		archived, deleted, err := s.store.SweepExpired(ctx, ids, s.policy.ArchiveBeforeDelete)
		if err != nil {
			return s.failCleanup(result, started, fmt.Errorf("sweep expired entries: %w", err))
		}
		result.ArchivedCount = archived
		result.DeletedCount = deleted
	}

	result.Success = true
	result.ExecutionTimeMs = s.elapsedMs(started)
	span.SetAttributes(
		attribute.Int64("audit.cleanup_archived", result.ArchivedCount),
		attribute.Int64("audit.cleanup_deleted", result.DeletedCount),
	)
	return result
}

func (s *Service) failCleanup(result CleanupResult, started time.Time, err error) CleanupResult {
	result.Success = false
	result.ArchivedCount = 0
	result.DeletedCount = 0
	result.Err = err
	result.ErrorMessage = err.Error()
	result.ExecutionTimeMs = s.elapsedMs(started)
	return result
}

func (s *Service) elapsedMs(started time.Time) int64 {
	return s.now().Sub(started).Milliseconds()
}

// RunScheduled fires PerformCleanup on every interval tick until ctx is
// cancelled. A no-op when auto-cleanup is disabled; failures are logged,
// not raised.
func (s *Service) RunScheduled(ctx context.Context, interval time.Duration) {
	if !s.policy.AutoCleanupEnabled {
		log.Printf("retention auto-cleanup is disabled; scheduled sweep will not run")
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.PerformCleanup(ctx, CleanupOptions{})
			if !result.Success {
				log.Printf("scheduled retention cleanup %s failed: %s", result.RunID, result.ErrorMessage)
				continue
			}
			log.Printf("scheduled retention cleanup %s archived=%d deleted=%d in %dms",
				result.RunID, result.ArchivedCount, result.DeletedCount, result.ExecutionTimeMs)
		}
	}
}

// CleanupStatistics describes the expired backlog awaiting the sweep.
type CleanupStatistics struct {
	PendingArchival   int64
	OldestPendingDate *time.Time
	ByEventType       map[string]int64
}

// GetCleanupStatistics reports entries whose archive date has passed but
// which have not been swept yet.
func (s *Service) GetCleanupStatistics(ctx context.Context) (CleanupStatistics, error) {
	asOf := s.now().UTC()

	pending, err := s.store.CountExpired(ctx, asOf)
	if err != nil {
		return CleanupStatistics{}, fmt.Errorf("count pending archival: %w", err)
	}
	oldest, err := s.store.OldestExpired(ctx, asOf)
	if err != nil {
		return CleanupStatistics{}, fmt.Errorf("oldest pending archival: %w", err)
	}
	byType, err := s.store.CountExpiredByEventType(ctx, asOf)
	if err != nil {
		return CleanupStatistics{}, fmt.Errorf("pending archival by event type: %w", err)
	}

	return CleanupStatistics{
		PendingArchival:   pending,
		OldestPendingDate: oldest,
		ByEventType:       byType,
	}, nil
}
