package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

type entryResponse struct {
	ID             int64          `json:"id"`
	EventType      string         `json:"eventType"`
	EntityType     string         `json:"entityType"`
	EntityID       string         `json:"entityId"`
	EntityName     string         `json:"entityName,omitempty"`
	Action         string         `json:"action"`
	ActorID        *string        `json:"actorId"`
	ActorIP        *string        `json:"actorIp"`
	ActorUserAgent *string        `json:"actorUserAgent"`
	OldValues      map[string]any `json:"oldValues"`
	NewValues      map[string]any `json:"newValues"`
	PrevHash       *string        `json:"prevHash"`
	CurrHash       string         `json:"currHash"`
	Signature      string         `json:"signature"`
	CreatedAt      time.Time      `json:"createdAt"`
	ArchiveAfter   *time.Time     `json:"archiveAfter"`
}

func toEntryResponse(e entry.Entry) entryResponse {
	return entryResponse{
		ID:             e.ID,
		EventType:      string(e.EventType),
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		EntityName:     e.EntityName,
		Action:         e.Action,
		ActorID:        optionalString(e.ActorID),
		ActorIP:        optionalString(e.ActorIP),
		ActorUserAgent: optionalString(e.ActorUserAgent),
		OldValues:      e.OldValues,
		NewValues:      e.NewValues,
		PrevHash:       optionalString(e.PrevHash),
		CurrHash:       e.CurrHash,
		Signature:      e.Signature,
		CreatedAt:      e.CreatedAt,
		ArchiveAfter:   e.ArchiveAfter,
	}
}

func toEntryResponses(entries []entry.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type appendEntryRequest struct {
	EventType      string         `json:"eventType"`
	EntityType     string         `json:"entityType"`
	EntityID       string         `json:"entityId"`
	EntityName     string         `json:"entityName"`
	Action         string         `json:"action"`
	OldValues      map[string]any `json:"oldValues"`
	NewValues      map[string]any `json:"newValues"`
	ActorID        string         `json:"actorId"`
	ActorIP        string         `json:"actorIp"`
	ActorUserAgent string         `json:"actorUserAgent"`
}

// handleAppendEntry is the single write path business collaborators call.
// Actor provenance falls back to transport metadata when the caller does
// not supply it explicitly.
func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	var req appendEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_JSON", Message: "invalid JSON body"})
		return
	}

	actorIP := strings.TrimSpace(req.ActorIP)
	if actorIP == "" {
		actorIP = remoteIP(r)
	}
	actorUserAgent := strings.TrimSpace(req.ActorUserAgent)
	if actorUserAgent == "" {
		actorUserAgent = r.UserAgent()
	}

	stored, err := s.store.Append(r.Context(), entry.Entry{
		EventType:      entry.Type(req.EventType),
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		EntityName:     req.EntityName,
		Action:         req.Action,
		OldValues:      req.OldValues,
		NewValues:      req.NewValues,
		ActorID:        req.ActorID,
		ActorIP:        actorIP,
		ActorUserAgent: actorUserAgent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryResponse(stored))
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_ID", Message: "entry id must be an integer"})
		return
	}
	e, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryResponse(e))
}

type listEntriesResponse struct {
	Entries     []entryResponse `json:"entries"`
	HasNextPage bool            `json:"hasNextPage"`
	HasPrevPage bool            `json:"hasPrevPage"`
	TotalCount  int             `json:"totalCount"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := storage.ListEntriesPageRequest{
		EntityType: q.Get("entityType"),
		EntityID:   q.Get("entityId"),
		ActorID:    q.Get("actorId"),
		EventType:  q.Get("eventType"),
		CursorDir:  q.Get("dir"),
		Descending: q.Get("order") == "desc",
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_PAGE_SIZE", Message: "pageSize must be an integer"})
			return
		}
		req.PageSize = size
	}
	if v := q.Get("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_CURSOR", Message: "cursor must be an integer entry id"})
			return
		}
		req.CursorID = cursor
	}
	var ok bool
	if req.CreatedFrom, ok = parseTimeParam(w, q.Get("from"), "from"); !ok {
		return
	}
	if req.CreatedTo, ok = parseTimeParam(w, q.Get("to"), "to"); !ok {
		return
	}

	result, err := s.store.ListEntriesPage(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listEntriesResponse{
		Entries:     toEntryResponses(result.Entries),
		HasNextPage: result.HasNextPage,
		HasPrevPage: result.HasPrevPage,
		TotalCount:  result.TotalCount,
	})
}

func parseTimeParam(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    "BAD_TIME",
			Message: name + " must be an RFC 3339 timestamp",
		})
		return nil, false
	}
	return &t, true
}

func (s *Server) handleListByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	entries, err := s.store.ListByEntity(r.Context(), entityType, entityID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toEntryResponses(entries)})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	since, ok := parseTimeParam(w, r.URL.Query().Get("since"), "since")
	if !ok {
		return
	}
	stats, err := s.store.GetStatistics(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalEntries": stats.TotalEntries,
		"byEventType":  stats.ByEventType,
		"byEntityType": stats.ByEntityType,
		"byAction":     stats.ByAction,
	})
}
