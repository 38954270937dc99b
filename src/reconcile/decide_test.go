package reconcile

import (
	"testing"
	"time"

	"expense-tracker-server/src/models"
)

func TestDecide(t *testing.T) {
	version := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := version.Add(-time.Second)
	newer := version.Add(time.Second)
	deletedAt := version

	active := &models.Transaction{ID: 1, UpdatedAt: version}
	deleted := &models.Transaction{ID: 2, UpdatedAt: version, DeletedAt: &deletedAt}

	testCases := []struct {
		name     string
		kind     models.SyncOperationKind
		client   *time.Time
		existing *models.Transaction
		want     Action
	}{
		{"create without match", models.SyncCreate, nil, nil, ActionCreate},
		{"update without match", models.SyncUpdate, &older, nil, ActionCreate},
		{"delete without match", models.SyncDelete, nil, nil, ActionSkipNotFound},
		{"create matching active", models.SyncCreate, nil, active, ActionUpdate},
		{"update matching active same version", models.SyncUpdate, &version, active, ActionUpdate},
		{"update matching active newer version", models.SyncUpdate, &newer, active, ActionUpdate},
		{"update matching active older version", models.SyncUpdate, &older, active, ActionConflict},
		{"update matching deleted", models.SyncUpdate, nil, deleted, ActionRestoreUpdate},
		{"create matching deleted older version", models.SyncCreate, &older, deleted, ActionConflict},
		{"delete matching active", models.SyncDelete, nil, active, ActionDelete},
		{"delete matching active older version", models.SyncDelete, &older, active, ActionConflict},
		{"delete matching deleted", models.SyncDelete, &version, deleted, ActionSkipDeleted},
		{"delete matching deleted older version", models.SyncDelete, &older, deleted, ActionConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.kind, tc.client, tc.existing); got != tc.want {
				t.Errorf("Decide() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	version := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := &models.Transaction{UpdatedAt: version}

	if IsConflict(nil, existing) {
		t.Error("missing client version must never conflict")
	}
	if IsConflict(&version, existing) {
		t.Error("equal versions must not conflict")
	}
	older := version.Add(-time.Microsecond)
	if !IsConflict(&older, existing) {
		t.Error("older client version must conflict")
	}
	if IsConflict(&older, nil) {
		t.Error("no existing record must not conflict")
	}
}
