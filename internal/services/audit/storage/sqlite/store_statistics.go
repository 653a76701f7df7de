package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

// GetStatistics returns aggregate counts by event type, entity type, and
// action. When since is nil, counts are for all time.
func (s *Store) GetStatistics(ctx context.Context, since *time.Time) (storage.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return storage.Statistics{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Statistics{}, fmt.Errorf("storage is not configured")
	}

	where := ""
	params := []any{}
	if since != nil {
		where = " WHERE created_at >= ?"
		params = append(params, toMillis(*since))
	}

	stats := storage.Statistics{}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_entries"+where, params...,
	).Scan(&stats.TotalEntries); err != nil {
		return storage.Statistics{}, fmt.Errorf("count entries: %w", err)
	}

	var err error
	if stats.ByEventType, err = s.groupedCounts(ctx, "event_type", where, params); err != nil {
		return storage.Statistics{}, err
	}
	if stats.ByEntityType, err = s.groupedCounts(ctx, "entity_type", where, params); err != nil {
		return storage.Statistics{}, err
	}
	if stats.ByAction, err = s.groupedCounts(ctx, "action", where, params); err != nil {
		return storage.Statistics{}, err
	}
	return stats, nil
}

func (s *Store) groupedCounts(ctx context.Context, column, where string, params []any) (map[string]int64, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_entries%s GROUP BY %s", column, where, column),
		params...)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return counts, nil
}
