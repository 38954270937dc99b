package handlers

import (
	"net/http"
	"strings"
	"testing"

	"expense-tracker-server/src/models"
	"expense-tracker-server/src/reconcile"
)

func newSyncHandler(maxItems int) (*SyncHandler, *fakeTransactions, *fakeAudit, *fakeInvalidator) {
	store := newFakeTransactions()
	audit := &fakeAudit{}
	reports := &fakeInvalidator{}
	engine := reconcile.NewEngine(store, audit)
	return NewSyncHandler(engine, audit, reports, maxItems), store, audit, reports
}

func syncResults(t *testing.T, h *SyncHandler, body string) []models.SyncResult {
	t.Helper()
	rec, env := do(t, http.HandlerFunc(h.Sync), http.MethodPost, "/api/transactions/sync", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp syncResponse
	decodeData(t, env, &resp)
	return resp.Results
}

func TestSyncRejectsStructurallyInvalidBatches(t *testing.T) {
	h, _, audit, _ := newSyncHandler(2)

	testCases := []struct {
		name   string
		body   string
		status int
		path   string
	}{
		{"empty batch", `{"items":[]}`, http.StatusUnprocessableEntity, "items"},
		{"missing items", `{}`, http.StatusUnprocessableEntity, "items"},
		{"too many items", `{"items":[{"operation":"delete","clientId":"a"},{"operation":"delete","clientId":"b"},{"operation":"delete","clientId":"c"}]}`, http.StatusUnprocessableEntity, "items"},
		{"missing operation", `{"items":[{"clientId":"a"}]}`, http.StatusUnprocessableEntity, "items.0.operation"},
		{"unknown operation", `{"items":[{"operation":"delete","clientId":"a"},{"operation":"merge"}]}`, http.StatusUnprocessableEntity, "items.1.operation"},
		{"item not an object", `{"items":[42]}`, http.StatusUnprocessableEntity, "items.0"},
		{"not json", `items`, http.StatusBadRequest, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, http.HandlerFunc(h.Sync), http.MethodPost, "/api/transactions/sync", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if tc.path != "" && !strings.Contains(string(env.Details), `"path":"`+tc.path+`"`) {
				t.Errorf("details %s do not name %s", env.Details, tc.path)
			}
		})
	}
	if len(audit.attempts) != 0 {
		t.Errorf("rejected batches reached the engine: %d audit rows", len(audit.attempts))
	}
}

func TestSyncIsolatesMalformedItems(t *testing.T) {
	h, _, audit, reports := newSyncHandler(100)

	results := syncResults(t, h, `{"items":[
		{"operation":"create","clientId":"c1","type":"income","amount":100.004,"occurredAt":"2025-03-01T10:00:00Z"},
		{"operation":"create","clientId":"c2","type":"expense","amount":"abc","occurredAt":"2025-03-01T10:00:00Z"},
		{"operation":"create","clientId":"c3","type":"expense","amount":5,"occurredAt":"not a time"},
		{"operation":"create","clientId":"c4","type":"expense","amount":5,"occurredAt":"2025-03-01T10:00:00Z"}
	]}`)

	want := []models.SyncStatus{models.SyncApplied, models.SyncError, models.SyncError, models.SyncApplied}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, status := range want {
		if results[i].Status != status {
			t.Errorf("item %d: status = %s (%s), want %s", i, results[i].Status, results[i].Message, status)
		}
	}
	if results[2].ClientID == nil || *results[2].ClientID != "c3" {
		t.Errorf("malformed item lost its clientId: %+v", results[2])
	}
	if len(audit.attempts) != 4 {
		t.Errorf("audit rows = %d, want 4", len(audit.attempts))
	}
	if len(reports.calls) != 1 {
		t.Errorf("report invalidations = %d, want 1", len(reports.calls))
	}
}

func TestSyncEndToEndConflict(t *testing.T) {
	h, store, _, reports := newSyncHandler(100)

	first := syncResults(t, h, `{"items":[{"operation":"create","clientId":"c1","type":"income","amount":100.004,"occurredAt":"2025-03-01T10:00:00Z"}]}`)
	if first[0].Status != models.SyncApplied || first[0].ServerID == nil {
		t.Fatalf("create result = %+v", first[0])
	}

	second := syncResults(t, h, `{"items":[{"operation":"update","clientId":"c1","type":"income","amount":50,"occurredAt":"2025-03-01T10:00:00Z","updatedAt":"2025-03-01T11:00:00Z"}]}`)
	if second[0].Status != models.SyncConflict {
		t.Fatalf("stale update result = %+v", second[0])
	}

	tx := store.rows[*first[0].ServerID]
	if tx.Amount.String() != "100.00" {
		t.Errorf("amount = %s, want 100.00", tx.Amount.String())
	}
	if len(reports.calls) != 1 {
		t.Errorf("conflict-only batch invalidated reports: %d calls", len(reports.calls))
	}
}

func TestSyncAttemptsListing(t *testing.T) {
	h, _, _, _ := newSyncHandler(100)
	syncResults(t, h, `{"items":[
		{"operation":"delete","clientId":"gone"},
		{"operation":"create","clientId":"c1","type":"income","amount":1,"occurredAt":"2025-03-01T10:00:00Z"}
	]}`)

	rec, env := do(t, http.HandlerFunc(h.Attempts), http.MethodGet, "/api/transactions/sync/attempts?status=skipped", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Items []models.SyncAttempt `json:"items"`
	}
	decodeData(t, env, &got)
	if len(got.Items) != 1 || got.Items[0].Message == nil || *got.Items[0].Message != "not found" {
		t.Errorf("attempts = %+v", got.Items)
	}

	for _, query := range []string{"status=lost", "batchId=nope", "limit=-1"} {
		rec, _ := do(t, http.HandlerFunc(h.Attempts), http.MethodGet, "/api/transactions/sync/attempts?"+query, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", query, rec.Code)
		}
	}
}
