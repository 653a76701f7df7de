package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/certtrail/internal/services/audit/retention"
)

func TestValidateChainEmptyStore(t *testing.T) {
	store := openTestStore(t)
	result, err := store.ValidateChain(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if !result.Valid || result.EntriesChecked != 0 {
		t.Fatalf("result = %+v, want valid with zero checked", result)
	}
}

func TestValidateChainDetectsContentTampering(t *testing.T) {
	store := openTestStore(t)
	appendTestEntry(t, store, userUpdatedEntry("user-1"))
	victim := appendTestEntry(t, store, userUpdatedEntry("user-2"))
	appendTestEntry(t, store, userUpdatedEntry("user-3"))

	if _, err := store.sqlDB.Exec("UPDATE audit_entries SET action = 'delete' WHERE id = ?", victim.ID); err != nil {
		t.Fatalf("tamper entry: %v", err)
	}

	result, err := store.ValidateChain(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if result.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if result.FirstInvalidEntry != victim.ID {
		t.Fatalf("first invalid entry = %d, want %d", result.FirstInvalidEntry, victim.ID)
	}
	if !strings.Contains(result.ErrorMessage, "content hash mismatch") {
		t.Fatalf("error message = %q", result.ErrorMessage)
	}
	// The walk stops at the break; only the entry before the victim counts.
	if result.EntriesChecked != 1 {
		t.Fatalf("entries checked = %d, want 1", result.EntriesChecked)
	}
}

func TestValidateChainDetectsBrokenLink(t *testing.T) {
	store := openTestStore(t)
	appendTestEntry(t, store, userUpdatedEntry("user-1"))
	victim := appendTestEntry(t, store, userUpdatedEntry("user-2"))

	if _, err := store.sqlDB.Exec("UPDATE audit_entries SET prev_hash = 'forged' WHERE id = ?", victim.ID); err != nil {
		t.Fatalf("tamper entry: %v", err)
	}

	result, err := store.ValidateChain(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if result.Valid {
		t.Fatal("broken link reported valid")
	}
	if result.FirstInvalidEntry != victim.ID {
		t.Fatalf("first invalid entry = %d, want %d", result.FirstInvalidEntry, victim.ID)
	}
	if !strings.Contains(result.ErrorMessage, "previous-hash link broken") {
		t.Fatalf("error message = %q", result.ErrorMessage)
	}
}

func TestValidateChainSubrangeSeedsFromPredecessor(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		appendTestEntry(t, store, userUpdatedEntry("user-1"))
	}

	result, err := store.ValidateChain(context.Background(), 3, 5, 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if !result.Valid {
		t.Fatalf("subrange invalid: %+v", result)
	}
	if result.EntriesChecked != 3 {
		t.Fatalf("entries checked = %d, want 3", result.EntriesChecked)
	}
}

func TestValidateChainSurvivesRetentionSweep(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	store := openTestStore(t,
		WithArchivePolicy(retention.DefaultPolicy()),
		WithClock(func() time.Time { return now }),
	)
	first := appendTestEntry(t, store, userUpdatedEntry("user-1"))
	appendTestEntry(t, store, userUpdatedEntry("user-2"))
	appendTestEntry(t, store, userUpdatedEntry("user-3"))

	// Delete the oldest entry the way the retention sweep does.
	if _, _, err := store.SweepExpired(context.Background(), []int64{first.ID}, true); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	result, err := store.ValidateChain(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if !result.Valid {
		t.Fatalf("chain invalid after sweep: %+v", result)
	}
	if result.EntriesChecked != 2 {
		t.Fatalf("entries checked = %d, want 2", result.EntriesChecked)
	}
}

func TestValidateIntegrityWithSignatures(t *testing.T) {
	signer := testSigner(t)
	store := openTestStore(t, WithSigner(signer))
	appendTestEntry(t, store, userUpdatedEntry("user-1"))
	victim := appendTestEntry(t, store, userUpdatedEntry("user-2"))

	result, err := store.ValidateIntegrity(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate integrity: %v", err)
	}
	if !result.OverallValid || !result.HashChain.Valid || !result.Signatures.Valid {
		t.Fatalf("result = %+v, want all valid", result)
	}
	if result.Signatures.EntriesChecked != 2 {
		t.Fatalf("signatures checked = %d, want 2", result.Signatures.EntriesChecked)
	}

	// Swap in a forged signature; the chain itself stays intact.
	if _, err := store.sqlDB.Exec("UPDATE audit_entries SET signature = 'forged' WHERE id = ?", victim.ID); err != nil {
		t.Fatalf("tamper signature: %v", err)
	}

	result, err = store.ValidateIntegrity(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate integrity: %v", err)
	}
	if result.OverallValid {
		t.Fatal("forged signature reported valid")
	}
	if !result.HashChain.Valid {
		t.Fatalf("hash chain should stay valid: %+v", result.HashChain)
	}
	if len(result.Signatures.InvalidEntries) != 1 || result.Signatures.InvalidEntries[0].EntryID != victim.ID {
		t.Fatalf("invalid entries = %+v", result.Signatures.InvalidEntries)
	}
}

func TestValidateIntegrityDetectsBackdatedEntry(t *testing.T) {
	signer := testSigner(t)
	store := openTestStore(t, WithSigner(signer))
	appendTestEntry(t, store, userUpdatedEntry("user-1"))
	victim := appendTestEntry(t, store, userUpdatedEntry("user-2"))

	// Backdate the entry by a year. The content hash excludes created_at,
	// so only the signature can catch this.
	backdated := victim.CreatedAt.Add(-365 * 24 * time.Hour)
	if _, err := store.sqlDB.Exec("UPDATE audit_entries SET created_at = ? WHERE id = ?",
		toMillis(backdated), victim.ID); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}

	result, err := store.ValidateIntegrity(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate integrity: %v", err)
	}
	if result.OverallValid {
		t.Fatal("backdated entry reported valid")
	}
	if !result.HashChain.Valid {
		t.Fatalf("hash chain should stay valid: %+v", result.HashChain)
	}
	if len(result.Signatures.InvalidEntries) != 1 || result.Signatures.InvalidEntries[0].EntryID != victim.ID {
		t.Fatalf("invalid entries = %+v", result.Signatures.InvalidEntries)
	}
	if !strings.Contains(result.Signatures.InvalidEntries[0].ErrorMessage, "tampered") {
		t.Fatalf("message = %q, want tamper diagnostic", result.Signatures.InvalidEntries[0].ErrorMessage)
	}
}

func TestValidateIntegrityUnconfiguredSignerIsVacuouslyValid(t *testing.T) {
	store := openTestStore(t)
	appendTestEntry(t, store, userUpdatedEntry("user-1"))

	result, err := store.ValidateIntegrity(context.Background(), 0, 0, 0)
	if err != nil {
		t.Fatalf("validate integrity: %v", err)
	}
	if !result.OverallValid || !result.Signatures.Valid {
		t.Fatalf("result = %+v, want valid", result)
	}
	if result.Signatures.EntriesChecked != 0 {
		t.Fatalf("signatures checked = %d, want 0", result.Signatures.EntriesChecked)
	}
}
