package sqlite

import (
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

type listEntriesPageSQLPlan struct {
	whereClause      string
	params           []any
	orderClause      string
	countWhereClause string
	countParams      []any
}

func buildListEntriesPageSQLPlan(req storage.ListEntriesPageRequest) listEntriesPageSQLPlan {
	whereClause := "1=1"
	params := []any{}

	appendFilter := func(clause string, value any) {
		whereClause += " AND " + clause
		params = append(params, value)
	}

	if req.EntityType != "" {
		appendFilter("entity_type = ?", req.EntityType)
	}
	if req.EntityID != "" {
		appendFilter("entity_id = ?", req.EntityID)
	}
	if req.ActorID != "" {
		appendFilter("actor_id = ?", req.ActorID)
	}
	if req.EventType != "" {
		appendFilter("event_type = ?", req.EventType)
	}
	if req.CreatedFrom != nil {
		appendFilter("created_at >= ?", toMillis(*req.CreatedFrom))
	}
	if req.CreatedTo != nil {
		appendFilter("created_at <= ?", toMillis(*req.CreatedTo))
	}

	// Filters alone define the total count; the cursor only positions the page.
	countWhereClause := whereClause
	countParams := append([]any(nil), params...)

	// The cursor direction determines comparison operators; sort order is applied separately.
	if req.CursorID > 0 {
		if req.CursorDir == "bwd" {
			whereClause += " AND id < ?"
		} else {
			whereClause += " AND id > ?"
		}
		params = append(params, req.CursorID)
	}

	orderClause := "ORDER BY id ASC"
	if req.Descending {
		orderClause = "ORDER BY id DESC"
	}
	// Reverse sort temporarily for previous-page queries so near-edge rows are fetched first.
	if req.CursorReverse {
		if req.Descending {
			orderClause = "ORDER BY id ASC"
		} else {
			orderClause = "ORDER BY id DESC"
		}
	}

	return listEntriesPageSQLPlan{
		whereClause:      whereClause,
		params:           params,
		orderClause:      orderClause,
		countWhereClause: countWhereClause,
		countParams:      countParams,
	}
}
