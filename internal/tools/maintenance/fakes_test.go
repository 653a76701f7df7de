package maintenance

import (
	"context"
	"time"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

// fakeVerifier returns canned validation results.
type fakeVerifier struct {
	chain     storage.ChainValidation
	integrity storage.IntegrityValidation
	err       error
}

func (f *fakeVerifier) ValidateChain(context.Context, int64, int64, int) (storage.ChainValidation, error) {
	return f.chain, f.err
}

func (f *fakeVerifier) ValidateIntegrity(context.Context, int64, int64, int) (storage.IntegrityValidation, error) {
	return f.integrity, f.err
}

// fakeRetentionStore serves a fixed expired backlog and records sweeps.
type fakeRetentionStore struct {
	expired  []entry.Entry
	sweeps   [][]int64
	archived int64
}

func (f *fakeRetentionStore) ListExpired(_ context.Context, _ time.Time, limit int) ([]entry.Entry, error) {
	if limit > 0 && limit < len(f.expired) {
		return f.expired[:limit], nil
	}
	return f.expired, nil
}

func (f *fakeRetentionStore) CountExpired(context.Context, time.Time) (int64, error) {
	return int64(len(f.expired)), nil
}

func (f *fakeRetentionStore) OldestExpired(context.Context, time.Time) (*time.Time, error) {
	if len(f.expired) == 0 {
		return nil, nil
	}
	oldest := f.expired[0].CreatedAt
	return &oldest, nil
}

func (f *fakeRetentionStore) CountExpiredByEventType(context.Context, time.Time) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, e := range f.expired {
		counts[string(e.EventType)]++
	}
	return counts, nil
}

func (f *fakeRetentionStore) SweepExpired(_ context.Context, ids []int64, archiveBeforeDelete bool) (int64, int64, error) {
	f.sweeps = append(f.sweeps, ids)
	n := int64(len(ids))
	if archiveBeforeDelete {
		f.archived += n
	}
	remaining := f.expired[:0]
	for _, e := range f.expired {
		keep := true
		for _, id := range ids {
			if e.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, e)
		}
	}
	f.expired = remaining
	if archiveBeforeDelete {
		return n, n, nil
	}
	return 0, n, nil
}

func (f *fakeRetentionStore) CountArchived(context.Context) (int64, error) {
	return f.archived, nil
}
