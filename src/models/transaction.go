package models

import (
	"encoding/json"
	"time"

	"expense-tracker-server/src/money"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	CategoryID  *int64          `json:"category_id"`
	ClientID    *string         `json:"client_id"`
	Type        TransactionType `json:"type"`
	Amount      money.Amount    `json:"amount"`
	Description *string         `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at"`
}

// Active reports whether the transaction has not been soft-deleted.
func (t Transaction) Active() bool {
	return t.DeletedAt == nil
}

// NewTransaction holds the fields of a transaction about to be inserted.
type NewTransaction struct {
	UserID      int64
	CategoryID  *int64
	ClientID    *string
	Type        TransactionType
	Amount      money.Amount
	Description *string
	OccurredAt  time.Time
}

// TransactionPatch is a partial update. Nil pointers and unset Nullable
// fields are left untouched; a set Nullable with a nil Value writes NULL.
// Restore clears deleted_at in the same write.
type TransactionPatch struct {
	CategoryID  Nullable[int64]
	ClientID    Nullable[string]
	Type        *TransactionType
	Amount      *money.Amount
	Description Nullable[string]
	OccurredAt  *time.Time
	Restore     bool
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return !p.CategoryID.Set && !p.ClientID.Set && p.Type == nil && p.Amount == nil &&
		!p.Description.Set && p.OccurredAt == nil && !p.Restore
}

// TransactionFilter narrows listings and reports. Zero values mean no filter.
type TransactionFilter struct {
	Type          *TransactionType
	CategoryID    *int64
	Uncategorized bool
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type TransactionPage struct {
	Items      []Transaction `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// CreateTransactionRequest is the body of a direct create. Amount is kept raw
// so that numbers and numeric strings go through the same normalization as
// sync items.
type CreateTransactionRequest struct {
	CategoryID  *int64          `json:"categoryId" validate:"omitempty,gt=0"`
	ClientID    *string         `json:"clientId" validate:"omitempty,min=1,max=100"`
	Type        TransactionType `json:"type" validate:"required,oneof=income expense"`
	Amount      json.RawMessage `json:"amount"`
	Description *string         `json:"description" validate:"omitempty,max=255"`
	OccurredAt  *time.Time      `json:"occurredAt" validate:"required"`
}

// UpdateTransactionRequest is a partial update. ExpectedUpdatedAt, when sent,
// must not be older than the stored version.
type UpdateTransactionRequest struct {
	CategoryID        Nullable[int64]  `json:"categoryId"`
	ClientID          Nullable[string] `json:"clientId"`
	Type              *TransactionType `json:"type" validate:"omitempty,oneof=income expense"`
	Amount            json.RawMessage  `json:"amount"`
	Description       Nullable[string] `json:"description"`
	OccurredAt        *time.Time       `json:"occurredAt"`
	ExpectedUpdatedAt *time.Time       `json:"expectedUpdatedAt"`
}
