package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

const entryColumns = "id, event_type, entity_type, entity_id, entity_name, action, actor_id, actor_ip, actor_user_agent, old_values, new_values, prev_hash, curr_hash, signature, created_at, archive_after"

// Append atomically appends an entry to the chain and returns it with id,
// hashes, signature, and expiry set.
//
// The whole read-tip, hash, sign, insert sequence runs under a store-level
// lock inside one transaction: two concurrent appends must never observe
// the same chain tip.
func (s *Store) Append(ctx context.Context, e entry.Entry) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entry.Entry{}, fmt.Errorf("storage is not configured")
	}

	validated, err := entry.NormalizeForAppend(e)
	if err != nil {
		return entry.Entry{}, err
	}
	e = validated

	ctx, span := s.tracer.Start(ctx, "audit.Append", trace.WithAttributes(
		attribute.String("audit.event_type", string(e.EventType)),
		attribute.String("audit.entity_type", e.EntityType),
	))
	defer span.End()

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prevHash := ""
	var tipHash sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT curr_hash FROM audit_entries ORDER BY id DESC LIMIT 1").Scan(&tipHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return entry.Entry{}, fmt.Errorf("read chain tip: %w", err)
	}
	if tipHash.Valid {
		prevHash = tipHash.String
	}

	e.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	currHash, err := entry.ContentHash(e, prevHash)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("compute content hash: %w", err)
	}
	e.PrevHash = prevHash
	e.CurrHash = currHash
	e.Signature = ""

	if s.policy != nil {
		archiveAfter := s.policy.CalculateArchiveDate(e.EventType, e.CreatedAt)
		e.ArchiveAfter = &archiveAfter
	} else {
		e.ArchiveAfter = nil
	}

	oldValues, err := valuesColumn(e.OldValues)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := valuesColumn(e.NewValues)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("encode new values: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO audit_entries (
    event_type, entity_type, entity_id, entity_name, action,
    actor_id, actor_ip, actor_user_agent, old_values, new_values,
    prev_hash, curr_hash, signature, created_at, archive_after
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.EventType), e.EntityType, e.EntityID, e.EntityName, e.Action,
		toNullString(e.ActorID), toNullString(e.ActorIP), toNullString(e.ActorUserAgent),
		oldValues, newValues,
		toNullString(e.PrevHash), e.CurrHash, e.Signature,
		toMillis(e.CreatedAt), toNullMillis(e.ArchiveAfter),
	)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("append entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return entry.Entry{}, fmt.Errorf("read appended id: %w", err)
	}
	e.ID = id

	// The sign payload covers id and created_at, so signing happens after
	// the insert assigns the id, inside the same transaction.
	if s.signer != nil && s.signer.IsConfigured() {
		sig, err := s.signer.GenerateSignature(ctx, e)
		if err != nil {
			// Signing unavailability must never fail an append.
			log.Printf("audit append: signing degraded to empty signature: %v", err)
			sig = ""
		}
		if sig != "" {
			if _, err := tx.ExecContext(ctx,
				"UPDATE audit_entries SET signature = ? WHERE id = ?", sig, id); err != nil {
				return entry.Entry{}, fmt.Errorf("store signature: %w", err)
			}
			e.Signature = sig
		}
	}

	if err := tx.Commit(); err != nil {
		return entry.Entry{}, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int64("audit.entry_id", e.ID))
	return e, nil
}

// GetEntry retrieves one entry by id.
func (s *Store) GetEntry(ctx context.Context, id int64) (entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return entry.Entry{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entry.Entry{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM audit_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry.Entry{}, storage.ErrNotFound
		}
		return entry.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// FindRange returns entries ordered ascending by id, bounded by startID and
// endID when non-zero and capped at limit.
func (s *Store) FindRange(ctx context.Context, startID, endID int64, limit int) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 || limit > storage.DefaultRangeLimit {
		limit = storage.DefaultRangeLimit
	}

	query := "SELECT " + entryColumns + " FROM audit_entries WHERE 1=1"
	params := make([]any, 0, 3)
	if startID > 0 {
		query += " AND id >= ?"
		params = append(params, startID)
	}
	if endID > 0 {
		query += " AND id <= ?"
		params = append(params, endID)
	}
	query += " ORDER BY id ASC LIMIT ?"
	params = append(params, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find range: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByEntity returns all entries for one business entity, ascending.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" {
		return nil, fmt.Errorf("entity type is required")
	}
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if limit <= 0 || limit > storage.DefaultRangeLimit {
		limit = storage.DefaultRangeLimit
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM audit_entries WHERE entity_type = ? AND entity_id = ? ORDER BY id ASC LIMIT ?",
		entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by entity: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (entry.Entry, error) {
	var (
		e            entry.Entry
		eventType    string
		actorID      sql.NullString
		actorIP      sql.NullString
		actorAgent   sql.NullString
		oldValues    sql.NullString
		newValues    sql.NullString
		prevHash     sql.NullString
		createdAt    int64
		archiveAfter sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &eventType, &e.EntityType, &e.EntityID, &e.EntityName, &e.Action,
		&actorID, &actorIP, &actorAgent, &oldValues, &newValues,
		&prevHash, &e.CurrHash, &e.Signature, &createdAt, &archiveAfter,
	); err != nil {
		return entry.Entry{}, err
	}

	e.EventType = entry.Type(eventType)
	e.ActorID = actorID.String
	e.ActorIP = actorIP.String
	e.ActorUserAgent = actorAgent.String
	e.PrevHash = prevHash.String
	e.CreatedAt = fromMillis(createdAt)
	e.ArchiveAfter = fromNullMillis(archiveAfter)

	var err error
	if e.OldValues, err = valuesFromColumn(oldValues); err != nil {
		return entry.Entry{}, fmt.Errorf("decode old values: %w", err)
	}
	if e.NewValues, err = valuesFromColumn(newValues); err != nil {
		return entry.Entry{}, fmt.Errorf("decode new values: %w", err)
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]entry.Entry, error) {
	var entries []entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// valuesColumn serializes a value map with the canonical encoder so the
// stored bytes match what was hashed.
func valuesColumn(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := entry.CanonicalJSON(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func valuesFromColumn(col sql.NullString) (map[string]any, error) {
	if !col.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
