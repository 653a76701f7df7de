package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/certtrail/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
	"github.com/louisbranch/certtrail/internal/services/audit/storage/sqlite/migrations"

	_ "modernc.org/sqlite"
)

const tracerName = "certtrail/audit/storage"

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// toNullMillis maps optional domain times to sql.NullInt64 for nullable DB columns.
func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

// fromNullMillis maps nullable SQL timestamps back into optional domain time values.
func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func toNullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// Store provides the SQLite-backed audit entry and retention store.
//
// Appends are serialized by appendMu around the read-tip/hash/sign/insert
// critical section; reads run freely in parallel.
type Store struct {
	sqlDB    *sql.DB
	appendMu sync.Mutex
	signer   *signing.Service
	policy   storage.ArchivePolicy
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures optional store dependencies.
type Option func(*Store)

// WithSigner wires the integrity service used to sign appended entries.
// Without it, entries are persisted with an empty signature.
func WithSigner(s *signing.Service) Option {
	return func(store *Store) {
		store.signer = s
	}
}

// WithArchivePolicy wires the retention policy used to stamp expiry dates.
// Without it, entries are retained indefinitely (NULL archive date).
func WithArchivePolicy(p storage.ArchivePolicy) Option {
	return func(store *Store) {
		store.policy = p
	}
}

// WithClock overrides the append timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(store *Store) {
		store.now = now
	}
}

// Open opens the SQLite audit store at the provided path and applies
// embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{
		sqlDB:  sqlDB,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.AuditFS, "audit"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
