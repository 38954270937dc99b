package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SyncOperationKind string

const (
	SyncCreate SyncOperationKind = "create"
	SyncUpdate SyncOperationKind = "update"
	SyncDelete SyncOperationKind = "delete"
)

func (k SyncOperationKind) Valid() bool {
	switch k {
	case SyncCreate, SyncUpdate, SyncDelete:
		return true
	}
	return false
}

// SyncOperation is one item of an offline client's batch. Amount is kept
// raw so that it can be validated per item instead of failing the decode of
// the whole batch.
type SyncOperation struct {
	Operation   SyncOperationKind `json:"operation"`
	ID          *int64            `json:"id,omitempty"`
	ServerID    *int64            `json:"serverId,omitempty"`
	ClientID    Nullable[string]  `json:"clientId"`
	CategoryID  Nullable[int64]   `json:"categoryId"`
	Type        *TransactionType  `json:"type,omitempty"`
	Amount      json.RawMessage   `json:"amount,omitempty"`
	Description Nullable[string]  `json:"description"`
	OccurredAt  *time.Time        `json:"occurredAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`

	// Raw is the item as the client sent it, persisted with the audit row.
	Raw json.RawMessage `json:"-"`
	// Malformed explains why the item's fields could not be decoded. Such
	// an item still gets a result of its own.
	Malformed string `json:"-"`
}

// DecodeSyncOperation decodes one batch item. An item whose fields have the
// wrong JSON types is returned with Malformed set; an error is returned only
// when the item is not an object or its operation is not a string.
func DecodeSyncOperation(raw json.RawMessage) (SyncOperation, error) {
	var op SyncOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		var head struct {
			Operation SyncOperationKind `json:"operation"`
			ClientID  json.RawMessage   `json:"clientId"`
		}
		if herr := json.Unmarshal(raw, &head); herr != nil {
			return SyncOperation{}, herr
		}
		op = SyncOperation{Operation: head.Operation, Malformed: decodeProblem(err)}
		var clientID string
		if json.Unmarshal(head.ClientID, &clientID) == nil {
			op.ClientID = Some(clientID)
		}
	}
	op.Raw = raw
	return op, nil
}

func decodeProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has an invalid value", typeErr.Field)
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return fmt.Sprintf("invalid timestamp %s", timeErr.Value)
	}
	return "malformed item: " + err.Error()
}

// TargetID returns the server id the client addressed, preferring serverId.
func (op *SyncOperation) TargetID() *int64 {
	if op.ServerID != nil {
		return op.ServerID
	}
	return op.ID
}

// ClientRef returns the client id or "" when none was sent.
func (op *SyncOperation) ClientRef() string {
	if op.ClientID.Value == nil {
		return ""
	}
	return *op.ClientID.Value
}

type SyncStatus string

const (
	SyncApplied  SyncStatus = "applied"
	SyncSkipped  SyncStatus = "skipped"
	SyncConflict SyncStatus = "conflict"
	SyncError    SyncStatus = "error"
)

// SyncResult is the per-item outcome returned to the client, in input order.
type SyncResult struct {
	ClientID  *string           `json:"clientId"`
	ServerID  *int64            `json:"serverId,omitempty"`
	Operation SyncOperationKind `json:"operation"`
	Status    SyncStatus        `json:"status"`
	Message   string            `json:"message,omitempty"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
}

// SyncAttempt is one audit row describing how a sync item was handled.
type SyncAttempt struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	BatchID       uuid.UUID         `json:"batch_id"`
	TransactionID *int64            `json:"transaction_id"`
	ClientID      *string           `json:"client_id"`
	Operation     SyncOperationKind `json:"operation"`
	Payload       json.RawMessage   `json:"payload"`
	Status        SyncStatus        `json:"status"`
	Message       *string           `json:"message"`
	ProcessedAt   time.Time         `json:"processed_at"`
}

// SyncAttemptFilter narrows the audit listing.
type SyncAttemptFilter struct {
	BatchID       *uuid.UUID
	TransactionID *int64
	Status        *SyncStatus
	Limit         int
	Offset        int
}
