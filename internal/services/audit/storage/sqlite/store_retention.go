package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

// ListExpired returns up to limit entries whose archive date has passed,
// ordered by archive date ascending so the oldest backlog drains first.
func (s *Store) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 || limit > storage.DefaultRangeLimit {
		limit = storage.DefaultRangeLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM audit_entries WHERE archive_after IS NOT NULL AND archive_after <= ? ORDER BY archive_after ASC, id ASC LIMIT ?",
		toMillis(asOf), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountExpired counts entries whose archive date has passed.
func (s *Store) CountExpired(ctx context.Context, asOf time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_entries WHERE archive_after IS NOT NULL AND archive_after <= ?",
		toMillis(asOf)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count expired: %w", err)
	}
	return count, nil
}

// OldestExpired returns the oldest pending archive date, or nil when the
// backlog is empty.
func (s *Store) OldestExpired(ctx context.Context, asOf time.Time) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var oldest sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT MIN(archive_after) FROM audit_entries WHERE archive_after IS NOT NULL AND archive_after <= ?",
		toMillis(asOf)).Scan(&oldest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("oldest expired: %w", err)
	}
	return fromNullMillis(oldest), nil
}

// CountExpiredByEventType breaks the expired backlog down by event type.
func (s *Store) CountExpiredByEventType(ctx context.Context, asOf time.Time) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT event_type, COUNT(*) FROM audit_entries WHERE archive_after IS NOT NULL AND archive_after <= ? GROUP BY event_type",
		toMillis(asOf))
	if err != nil {
		return nil, fmt.Errorf("expired by event type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan expired count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired counts: %w", err)
	}
	return counts, nil
}

// SweepExpired archives and deletes the identified entries in a single
// transaction. With archiveBeforeDelete set, the archive copy is written
// before the delete inside the same transaction, so a cancelled or failed
// sweep never leaves an entry deleted without its archive record.
func (s *Store) SweepExpired(ctx context.Context, ids []int64, archiveBeforeDelete bool) (archived, deleted int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, 0, fmt.Errorf("storage is not configured")
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	ctx, span := s.tracer.Start(ctx, "audit.SweepExpired", trace.WithAttributes(
		attribute.Int("audit.sweep_batch", len(ids)),
	))
	defer span.End()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	params := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		params = append(params, id)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if archiveBeforeDelete {
		archiveParams := append([]any{toMillis(s.now().UTC())}, params...)
		res, err := tx.ExecContext(ctx, `
INSERT INTO audit_archive (
    id, event_type, entity_type, entity_id, entity_name, action,
    actor_id, actor_ip, actor_user_agent, old_values, new_values,
    prev_hash, curr_hash, signature, created_at, archive_after, archived_at
)
SELECT id, event_type, entity_type, entity_id, entity_name, action,
    actor_id, actor_ip, actor_user_agent, old_values, new_values,
    prev_hash, curr_hash, signature, created_at, archive_after, ?
FROM audit_entries WHERE id IN (`+placeholders+`)`, archiveParams...)
		if err != nil {
			return 0, 0, fmt.Errorf("archive entries: %w", err)
		}
		archived, err = res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("count archived: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE id IN ("+placeholders+")", params...)
	if err != nil {
		return 0, 0, fmt.Errorf("delete entries: %w", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("count deleted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return archived, deleted, nil
}

// CountArchived returns the number of rows in the archive sink.
func (s *Store) CountArchived(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_archive").Scan(&count); err != nil {
		return 0, fmt.Errorf("count archived: %w", err)
	}
	return count, nil
}
