package sqlite

import (
	"context"
	"fmt"

	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

// ListEntriesPage returns a paginated, filtered list of entries for the
// admin history surface.
func (s *Store) ListEntriesPage(ctx context.Context, req storage.ListEntriesPageRequest) (storage.ListEntriesPageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListEntriesPageResult{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ListEntriesPageResult{}, fmt.Errorf("storage is not configured")
	}
	if req.PageSize <= 0 {
		req.PageSize = 50
	}
	if req.PageSize > 200 {
		req.PageSize = 200
	}

	plan := buildListEntriesPageSQLPlan(req)

	// Fetch one extra row to detect whether another page exists.
	query := fmt.Sprintf(
		"SELECT %s FROM audit_entries WHERE %s %s LIMIT %d",
		entryColumns, plan.whereClause, plan.orderClause, req.PageSize+1,
	)

	rows, err := s.sqlDB.QueryContext(ctx, query, plan.params...)
	if err != nil {
		return storage.ListEntriesPageResult{}, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return storage.ListEntriesPageResult{}, err
	}

	hasMore := len(entries) > req.PageSize
	if hasMore {
		entries = entries[:req.PageSize]
	}

	// For "previous page" navigation, reverse the results to maintain consistent order.
	if req.CursorReverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_entries WHERE %s", plan.countWhereClause)
	var totalCount int
	if err := s.sqlDB.QueryRowContext(ctx, countQuery, plan.countParams...).Scan(&totalCount); err != nil {
		return storage.ListEntriesPageResult{}, fmt.Errorf("count entries: %w", err)
	}

	result := storage.ListEntriesPageResult{
		Entries:    entries,
		TotalCount: totalCount,
	}

	if req.CursorReverse {
		result.HasNextPage = true // We came from next, so there is a next
		result.HasPrevPage = hasMore
	} else {
		result.HasNextPage = hasMore
		result.HasPrevPage = req.CursorID > 0
	}

	return result, nil
}
