package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/certtrail/internal/services/audit/retention"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage/sqlite"
)

func newTestServer(t *testing.T, grant *AdminGrantConfig) *httptest.Server {
	t.Helper()

	signer, err := signing.NewLocalSigner([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	signerSvc := signing.NewService(signer)

	policy := retention.DefaultPolicy()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "audit.db"),
		sqlite.WithSigner(signerSvc),
		sqlite.WithArchivePolicy(policy),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	server := NewServer(store, signerSvc, retention.NewService(policy, store), grant)
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func appendOne(t *testing.T, ts *httptest.Server, eventType, entityID string) entryResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/v1/audit/entries", map[string]any{
		"eventType":  eventType,
		"entityType": "user",
		"entityId":   entityID,
		"action":     "update",
		"actorId":    "admin-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append status = %d, want 201", resp.StatusCode)
	}
	var e entryResponse
	decodeBody(t, resp, &e)
	return e
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAppendAndGetEntry(t *testing.T) {
	ts := newTestServer(t, nil)

	created := appendOne(t, ts, "USER_UPDATED", "user-1")
	if created.ID != 1 {
		t.Fatalf("id = %d, want 1", created.ID)
	}
	if created.CurrHash == "" || created.Signature == "" {
		t.Fatalf("chain metadata missing: %+v", created)
	}
	if created.PrevHash != nil {
		t.Fatalf("first entry prev hash = %v, want null", created.PrevHash)
	}
	if created.ArchiveAfter == nil {
		t.Fatal("expected an archive date from the default policy")
	}
	if created.ActorIP == nil || *created.ActorIP == "" {
		t.Fatal("actor ip should fall back to the remote address")
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/audit/entries/%d", ts.URL, created.ID))
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	var got entryResponse
	decodeBody(t, resp, &got)
	if got.CurrHash != created.CurrHash {
		t.Fatalf("curr hash = %q, want %q", got.CurrHash, created.CurrHash)
	}
}

func TestAppendRejectsMissingFields(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/v1/audit/entries", map[string]any{
		"entityType": "user",
		"entityId":   "user-1",
		"action":     "update",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/audit/entries/999")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListEntriesPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := 1; i <= 5; i++ {
		appendOne(t, ts, "USER_UPDATED", fmt.Sprintf("user-%d", i))
	}

	resp, err := http.Get(ts.URL + "/v1/audit/entries?pageSize=2")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var page listEntriesResponse
	decodeBody(t, resp, &page)
	if len(page.Entries) != 2 {
		t.Fatalf("len = %d, want 2", len(page.Entries))
	}
	if !page.HasNextPage || page.HasPrevPage {
		t.Fatalf("pagination flags = next:%t prev:%t", page.HasNextPage, page.HasPrevPage)
	}
	if page.TotalCount != 5 {
		t.Fatalf("total = %d, want 5", page.TotalCount)
	}

	resp, err = http.Get(ts.URL + "/v1/audit/entries?pageSize=2&cursor=2")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	decodeBody(t, resp, &page)
	if page.Entries[0].ID != 3 {
		t.Fatalf("first id = %d, want 3", page.Entries[0].ID)
	}
	if !page.HasPrevPage {
		t.Fatal("cursor page must report a previous page")
	}
}

func TestListEntriesFilterValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/audit/entries?from=not-a-time")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListByEntity(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")
	appendOne(t, ts, "USER_UPDATED", "user-2")
	appendOne(t, ts, "USER_LOGIN", "user-1")

	resp, err := http.Get(ts.URL + "/v1/audit/entities/user/user-1/entries")
	if err != nil {
		t.Fatalf("list by entity: %v", err)
	}
	var body struct {
		Entries []entryResponse `json:"entries"`
	}
	decodeBody(t, resp, &body)
	if len(body.Entries) != 2 {
		t.Fatalf("len = %d, want 2", len(body.Entries))
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")
	appendOne(t, ts, "USER_LOGIN", "user-1")

	resp, err := http.Get(ts.URL + "/v1/audit/statistics")
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	var stats struct {
		TotalEntries int64            `json:"totalEntries"`
		ByEventType  map[string]int64 `json:"byEventType"`
	}
	decodeBody(t, resp, &stats)
	if stats.TotalEntries != 2 {
		t.Fatalf("total = %d, want 2", stats.TotalEntries)
	}
	if stats.ByEventType["USER_LOGIN"] != 1 {
		t.Fatalf("by event type = %v", stats.ByEventType)
	}
}

func TestValidateChainEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")
	appendOne(t, ts, "USER_UPDATED", "user-2")

	resp := postJSON(t, ts.URL+"/v1/audit/validate/chain", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result chainValidationResponse
	decodeBody(t, resp, &result)
	if !result.Valid || result.EntriesChecked != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestValidateIntegrityEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")

	resp := postJSON(t, ts.URL+"/v1/audit/validate/integrity", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result struct {
		OverallValid bool `json:"overallValid"`
		Signatures   struct {
			EntriesChecked int `json:"entriesChecked"`
		} `json:"signatures"`
	}
	decodeBody(t, resp, &result)
	if !result.OverallValid {
		t.Fatal("expected overall valid")
	}
	if result.Signatures.EntriesChecked != 1 {
		t.Fatalf("signatures checked = %d, want 1", result.Signatures.EntriesChecked)
	}
}

func TestSigningStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/audit/signing")
	if err != nil {
		t.Fatalf("signing status: %v", err)
	}
	var status struct {
		Configured     bool    `json:"configured"`
		KeyFingerprint *string `json:"keyFingerprint"`
	}
	decodeBody(t, resp, &status)
	if !status.Configured {
		t.Fatal("expected configured signing")
	}
	if status.KeyFingerprint == nil || len(*status.KeyFingerprint) != 16 {
		t.Fatalf("fingerprint = %v", status.KeyFingerprint)
	}
}

func TestRetentionEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")

	resp, err := http.Get(ts.URL + "/v1/audit/retention/policy")
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	var policy struct {
		DefaultRetentionDays int `json:"defaultRetentionDays"`
	}
	decodeBody(t, resp, &policy)
	if policy.DefaultRetentionDays != 90 {
		t.Fatalf("default days = %d, want 90", policy.DefaultRetentionDays)
	}

	resp, err = http.Get(ts.URL + "/v1/audit/retention/statistics")
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	var stats struct {
		PendingArchival int64 `json:"pendingArchival"`
	}
	decodeBody(t, resp, &stats)
	if stats.PendingArchival != 0 {
		t.Fatalf("pending = %d, want 0 for fresh entries", stats.PendingArchival)
	}

	resp, err = http.Get(ts.URL + "/v1/audit/retention/compliance")
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	var report struct {
		ComplianceStatus string   `json:"complianceStatus"`
		Recommendations  []string `json:"recommendations"`
	}
	decodeBody(t, resp, &report)
	if report.ComplianceStatus != "compliant" {
		t.Fatalf("status = %q, want compliant", report.ComplianceStatus)
	}
	if report.Recommendations == nil {
		t.Fatal("recommendations must be an empty list, not null")
	}
}

func TestCleanupEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	appendOne(t, ts, "USER_UPDATED", "user-1")

	resp := postJSON(t, ts.URL+"/v1/audit/retention/cleanup?dryRun=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result struct {
		RunID   string `json:"runId"`
		Success bool   `json:"success"`
		DryRun  bool   `json:"dryRun"`
	}
	decodeBody(t, resp, &result)
	if !result.Success || !result.DryRun || result.RunID == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestCleanupEndpointRejectsBadBatchSize(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/v1/audit/retention/cleanup?batchSize=zero", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAppendErrorBodyHasCode(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/v1/audit/entries", map[string]any{
		"eventType":  "USER_UPDATED",
		"entityType": "user",
		"entityId":   "user-1",
		"action":     "   ",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.HasPrefix(body.Code, "ENTRY_") {
		t.Fatalf("code = %q, want an entry validation code", body.Code)
	}
}

func TestValidateChainRejectsInvalidRange(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"negative start", map[string]any{"startId": -1}},
		{"negative limit", map[string]any{"limit": -5}},
		{"end before start", map[string]any{"startId": 10, "endId": 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/audit/validate/chain", tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Code != "VALIDATE_INVALID_RANGE" {
				t.Fatalf("code = %q", body.Code)
			}
		})
	}
}
