package reconcile

import (
	"time"

	"expense-tracker-server/src/models"
)

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionRestoreUpdate
	ActionDelete
	ActionSkipNotFound
	ActionSkipDeleted
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionRestoreUpdate:
		return "restore_update"
	case ActionDelete:
		return "delete"
	case ActionSkipNotFound:
		return "skip_not_found"
	case ActionSkipDeleted:
		return "skip_deleted"
	case ActionConflict:
		return "conflict"
	}
	return "unknown"
}

const (
	msgNotFound       = "not found"
	msgAlreadyDeleted = "already deleted"
	msgConflict       = "conflict: transaction was modified on the server"
)

// IsConflict reports whether the client's known version predates the stored
// one. A client that sends no version never conflicts.
func IsConflict(clientVersion *time.Time, existing *models.Transaction) bool {
	if clientVersion == nil || existing == nil {
		return false
	}
	return clientVersion.Before(existing.UpdatedAt)
}

// Decide picks the state transition for one operation given the record its
// identity resolved to, or nil when nothing matched. It has no side effects.
func Decide(kind models.SyncOperationKind, clientVersion *time.Time, existing *models.Transaction) Action {
	if existing == nil {
		if kind == models.SyncDelete {
			return ActionSkipNotFound
		}
		return ActionCreate
	}
	if IsConflict(clientVersion, existing) {
		return ActionConflict
	}
	if kind == models.SyncDelete {
		if !existing.Active() {
			return ActionSkipDeleted
		}
		return ActionDelete
	}
	if !existing.Active() {
		return ActionRestoreUpdate
	}
	return ActionUpdate
}
