package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/louisbranch/certtrail/internal/services/audit/domain/entry"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

func pageFixture(t *testing.T, n int) *Store {
	t.Helper()
	store := openTestStore(t)
	for i := 1; i <= n; i++ {
		e := userUpdatedEntry(fmt.Sprintf("user-%d", i%3))
		if i%4 == 0 {
			e.EventType = entry.TypeUserLogin
			e.Action = "login"
		}
		appendTestEntry(t, store, e)
	}
	return store
}

func TestListEntriesPageFirstPage(t *testing.T) {
	store := pageFixture(t, 7)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{PageSize: 3})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("len = %d, want 3", len(result.Entries))
	}
	if result.Entries[0].ID != 1 || result.Entries[2].ID != 3 {
		t.Fatalf("ids = %d..%d, want 1..3", result.Entries[0].ID, result.Entries[2].ID)
	}
	if !result.HasNextPage || result.HasPrevPage {
		t.Fatalf("pagination flags = next:%t prev:%t", result.HasNextPage, result.HasPrevPage)
	}
	if result.TotalCount != 7 {
		t.Fatalf("total = %d, want 7", result.TotalCount)
	}
}

func TestListEntriesPageCursorForward(t *testing.T) {
	store := pageFixture(t, 7)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{
		PageSize: 3,
		CursorID: 3,
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if result.Entries[0].ID != 4 {
		t.Fatalf("first id = %d, want 4", result.Entries[0].ID)
	}
	if !result.HasPrevPage {
		t.Fatal("expected previous page from a forward cursor")
	}
}

func TestListEntriesPageLastPage(t *testing.T) {
	store := pageFixture(t, 7)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{
		PageSize: 3,
		CursorID: 6,
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("len = %d, want 1", len(result.Entries))
	}
	if result.HasNextPage {
		t.Fatal("last page must not report a next page")
	}
}

func TestListEntriesPageReverseKeepsOrder(t *testing.T) {
	store := pageFixture(t, 7)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{
		PageSize:      3,
		CursorID:      5,
		CursorDir:     "bwd",
		CursorReverse: true,
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("len = %d, want 3", len(result.Entries))
	}
	// Rows nearest the cursor, returned in ascending order.
	if result.Entries[0].ID != 2 || result.Entries[2].ID != 4 {
		t.Fatalf("ids = %d..%d, want 2..4", result.Entries[0].ID, result.Entries[2].ID)
	}
	if !result.HasNextPage {
		t.Fatal("previous-page query must report a next page")
	}
}

func TestListEntriesPageFilters(t *testing.T) {
	store := pageFixture(t, 8)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{
		EventType: "USER_LOGIN",
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if result.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", result.TotalCount)
	}
	for _, e := range result.Entries {
		if e.EventType != entry.TypeUserLogin {
			t.Fatalf("unexpected event type %q", e.EventType)
		}
	}
}

func TestListEntriesPageDescending(t *testing.T) {
	store := pageFixture(t, 5)

	result, err := store.ListEntriesPage(context.Background(), storage.ListEntriesPageRequest{
		PageSize:   2,
		Descending: true,
	})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if result.Entries[0].ID != 5 || result.Entries[1].ID != 4 {
		t.Fatalf("ids = %d,%d, want 5,4", result.Entries[0].ID, result.Entries[1].ID)
	}
}
