package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/certtrail/internal/platform/errors"
	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entry"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// DefaultRangeLimit caps range reads and chain validation to bound
// verification cost.
const DefaultRangeLimit = 1000

// ArchivePolicy assigns retention expiry dates to entries at write time.
type ArchivePolicy interface {
	// CalculateArchiveDate returns when an entry of the given event type
	// created at createdAt becomes eligible for the retention sweep.
	CalculateArchiveDate(eventType entry.Type, createdAt time.Time) time.Time
}

// EntryStore owns entry persistence and append ordering for the audit chain.
type EntryStore interface {
	// Append constructs the full entry (hash, signature, expiry) and
	// persists it as the new chain tip. The only write path.
	Append(ctx context.Context, e entry.Entry) (entry.Entry, error)
	// GetEntry returns one entry by id. Returns ErrNotFound when missing.
	GetEntry(ctx context.Context, id int64) (entry.Entry, error)
	// FindRange returns entries with startID <= id <= endID ascending,
	// capped at limit (DefaultRangeLimit when limit <= 0). Zero bounds mean
	// unbounded.
	FindRange(ctx context.Context, startID, endID int64, limit int) ([]entry.Entry, error)
	// ListByEntity returns all entries for one business entity, ascending.
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]entry.Entry, error)
	// ListEntriesPage returns a paginated, filtered list for the admin
	// surface.
	ListEntriesPage(ctx context.Context, req ListEntriesPageRequest) (ListEntriesPageResult, error)
	// ValidateChain walks a range recomputing and comparing hashes.
	ValidateChain(ctx context.Context, startID, endID int64, limit int) (ChainValidation, error)
	// ValidateIntegrity runs ValidateChain plus a batch signature check
	// over the same range when signing is configured.
	ValidateIntegrity(ctx context.Context, startID, endID int64, limit int) (IntegrityValidation, error)
	// GetStatistics returns aggregate counts. When since is nil, counts
	// are for all time.
	GetStatistics(ctx context.Context, since *time.Time) (Statistics, error)
}

// RetentionStore exposes the reads and deletes the retention sweep needs.
type RetentionStore interface {
	// ListExpired returns up to limit entries whose archive date has
	// passed, ordered by archive date ascending.
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]entry.Entry, error)
	// CountExpired counts entries whose archive date has passed.
	CountExpired(ctx context.Context, asOf time.Time) (int64, error)
	// OldestExpired returns the oldest pending archive date, or nil.
	OldestExpired(ctx context.Context, asOf time.Time) (*time.Time, error)
	// CountExpiredByEventType breaks the expired backlog down by event type.
	CountExpiredByEventType(ctx context.Context, asOf time.Time) (map[string]int64, error)
	// SweepExpired archives (when archiveBeforeDelete is set) and deletes
	// the identified entries in one transaction, so nothing is deleted
	// without its archive copy.
	SweepExpired(ctx context.Context, ids []int64, archiveBeforeDelete bool) (archived, deleted int64, err error)
	// CountArchived returns the number of rows in the archive sink.
	CountArchived(ctx context.Context) (int64, error)
}

// ChainValidation reports the outcome of a hash-chain walk.
type ChainValidation struct {
	// Valid is true when every checked entry links and hashes correctly.
	Valid bool
	// EntriesChecked is the number of entries walked before stopping.
	EntriesChecked int
	// FirstInvalidEntry is the id of the first broken entry (0 when none).
	FirstInvalidEntry int64
	// ErrorMessage distinguishes a prev-hash break from a content-hash
	// break.
	ErrorMessage string
}

// IntegrityValidation combines the chain walk with signature verification.
type IntegrityValidation struct {
	HashChain  ChainValidation
	Signatures signing.BatchVerification
	// OverallValid is the conjunction of both halves; an unconfigured
	// signer leaves the signature half vacuously valid.
	OverallValid bool
}

// Statistics contains aggregate counters for the admin surface.
type Statistics struct {
	TotalEntries int64
	ByEventType  map[string]int64
	ByEntityType map[string]int64
	ByAction     map[string]int64
}

// ListEntriesPageRequest describes filters for admin history views.
type ListEntriesPageRequest struct {
	// EntityType/EntityID scope the query to one business entity.
	EntityType string
	EntityID   string
	// ActorID filters by the acting user.
	ActorID string
	// EventType filters by event classification.
	EventType string
	// CreatedFrom/CreatedTo bound the creation timestamp (inclusive).
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// PageSize is the maximum number of entries to return (default: 50,
	// max: 200).
	PageSize int
	// CursorID is the entry id to paginate from (0 for first page).
	CursorID int64
	// CursorDir is the pagination direction ("fwd" = id > cursor,
	// "bwd" = id < cursor).
	CursorDir string
	// CursorReverse temporarily reverses the sort so previous-page queries
	// fetch rows nearest the cursor first.
	CursorReverse bool
	// Descending orders results by id desc (newest first) when true.
	Descending bool
}

// ListEntriesPageResult contains one page of audit history.
type ListEntriesPageResult struct {
	Entries     []entry.Entry
	HasNextPage bool
	HasPrevPage bool
	TotalCount  int
}
