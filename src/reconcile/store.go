package reconcile

import (
	"context"
	"time"

	"expense-tracker-server/src/models"
)

// RecordStore is the user-scoped transaction storage the engine reconciles
// against. Lookups for another user's record must report models.ErrNotFound.
//
// Writes taking a version only apply while the stored updated_at still equals
// it and report models.ErrVersionMismatch otherwise. A nil version writes
// unconditionally.
type RecordStore interface {
	FindByID(ctx context.Context, userID, id int64) (*models.Transaction, error)
	FindByClientID(ctx context.Context, userID int64, clientID string) (*models.Transaction, error)
	Create(ctx context.Context, tx models.NewTransaction) (*models.Transaction, error)
	Update(ctx context.Context, userID, id int64, version *time.Time, patch models.TransactionPatch) (*models.Transaction, error)
	SoftDelete(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error)
	Restore(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error)
}

// AuditTrail receives one entry per processed sync item.
type AuditTrail interface {
	Record(ctx context.Context, attempt models.SyncAttempt) error
}
