package maintenance

import (
	"context"

	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

// chainVerifier exposes the two validation walks over stored entries.
type chainVerifier interface {
	ValidateChain(ctx context.Context, startID, endID int64, limit int) (storage.ChainValidation, error)
	ValidateIntegrity(ctx context.Context, startID, endID int64, limit int) (storage.IntegrityValidation, error)
}

// auditStore is the storage surface the maintenance command needs: chain
// verification plus the retention sweep operations, with Close for cleanup.
type auditStore interface {
	chainVerifier
	storage.RetentionStore
	Close() error
}
