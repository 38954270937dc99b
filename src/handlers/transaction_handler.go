package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
	"expense-tracker-server/src/money"
	"expense-tracker-server/src/reconcile"
	"expense-tracker-server/src/util"
)

type TransactionRepository interface {
	FindByID(ctx context.Context, userID, id int64) (*models.Transaction, error)
	Create(ctx context.Context, n models.NewTransaction) (*models.Transaction, error)
	Update(ctx context.Context, userID, id int64, version *time.Time, patch models.TransactionPatch) (*models.Transaction, error)
	SoftDelete(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error)
	Restore(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error)
	List(ctx context.Context, userID int64, f models.TransactionFilter) (*models.TransactionPage, error)
}

type TransactionHandler struct {
	transactions TransactionRepository
	reports      ReportInvalidator
}

func NewTransactionHandler(transactions TransactionRepository, reports ReportInvalidator) *TransactionHandler {
	if reports == nil {
		reports = noopInvalidator{}
	}
	return &TransactionHandler{transactions: transactions, reports: reports}
}

func amountError(err error) util.FieldError {
	code := "invalid"
	if errors.Is(err, money.ErrMissingAmount) {
		code = "required"
	}
	return util.FieldError{Path: "amount", Message: err.Error(), Code: code}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	filter, details := parseFilter(r)
	if filter.Limit > 500 {
		details = append(details, util.FieldError{Path: "limit", Message: "must be at most 500", Code: "max"})
	}
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	page, err := h.transactions.List(r.Context(), userID, filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to list transactions")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", page)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid transaction id")
		return
	}

	tx, err := h.transactions.FindByID(r.Context(), userID, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !tx.Active()) {
		util.NotFound(w, "transaction not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to get transaction")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", tx)
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())

	var req models.CreateTransactionRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	req.Type = models.TransactionType(strings.ToLower(string(req.Type)))
	req.ClientID = trimmed(req.ClientID)

	details := util.ValidateStruct(req)
	amount, err := money.ParseJSON(req.Amount)
	if err != nil {
		details = append(details, amountError(err))
	}
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	tx, err := h.transactions.Create(r.Context(), models.NewTransaction{
		UserID:      userID,
		CategoryID:  req.CategoryID,
		ClientID:    req.ClientID,
		Type:        req.Type,
		Amount:      amount,
		Description: req.Description,
		OccurredAt:  *req.OccurredAt,
	})
	switch {
	case errors.Is(err, models.ErrDuplicate):
		util.Conflict(w, "clientId already belongs to another transaction")
		return
	case errors.Is(err, models.ErrOwnerMissing):
		util.Unauthorized(w, "account no longer exists")
		return
	case errors.Is(err, models.ErrInvalidReference):
		util.ValidationFailed(w, []util.FieldError{{Path: "categoryId", Message: "category not found", Code: "invalid"}})
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to create transaction")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("transaction_id", tx.ID).Str("amount", tx.Amount.String()).Msg("transaction created")
	util.Success(w, http.StatusCreated, "transaction created", tx)
}

// Update applies a partial update. An expectedUpdatedAt older than the stored
// version is a 409; the write itself is conditioned on the version read here.
func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid transaction id")
		return
	}

	var req models.UpdateTransactionRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}

	patch := models.TransactionPatch{
		CategoryID:  req.CategoryID,
		Description: req.Description,
		OccurredAt:  req.OccurredAt,
	}
	if req.ClientID.Set {
		patch.ClientID = models.Nullable[string]{Set: true, Value: trimmed(req.ClientID.Value)}
	}
	if req.Type != nil {
		t := models.TransactionType(strings.ToLower(string(*req.Type)))
		req.Type = &t
		patch.Type = &t
	}

	details := util.ValidateStruct(req)
	if len(req.Amount) > 0 {
		amount, err := money.ParseJSON(req.Amount)
		if err != nil {
			details = append(details, amountError(err))
		} else {
			patch.Amount = &amount
		}
	}
	if req.CategoryID.Value != nil && *req.CategoryID.Value <= 0 {
		details = append(details, util.FieldError{Path: "categoryId", Message: "must be a positive integer", Code: "gt"})
	}
	if req.OccurredAt != nil && req.OccurredAt.IsZero() {
		details = append(details, util.FieldError{Path: "occurredAt", Message: "occurredAt is required", Code: "required"})
	}
	if len(details) == 0 && patch.Empty() {
		details = append(details, util.FieldError{Path: "body", Message: "at least one field must be provided", Code: "required"})
	}
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	current, err := h.transactions.FindByID(r.Context(), userID, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !current.Active()) {
		util.NotFound(w, "transaction not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to load transaction")
		util.Internal(w)
		return
	}
	// Same rule as sync: only a version older than the stored one conflicts.
	if reconcile.IsConflict(req.ExpectedUpdatedAt, current) {
		util.Conflict(w, "transaction was modified on the server")
		return
	}

	tx, err := h.transactions.Update(r.Context(), userID, id, &current.UpdatedAt, patch)
	switch {
	case errors.Is(err, models.ErrNotFound):
		util.NotFound(w, "transaction not found")
		return
	case errors.Is(err, models.ErrVersionMismatch):
		util.Conflict(w, "transaction was modified on the server")
		return
	case errors.Is(err, models.ErrDuplicate):
		util.Conflict(w, "clientId already belongs to another transaction")
		return
	case errors.Is(err, models.ErrOwnerMissing):
		util.Unauthorized(w, "account no longer exists")
		return
	case errors.Is(err, models.ErrInvalidReference):
		util.ValidationFailed(w, []util.FieldError{{Path: "categoryId", Message: "category not found", Code: "invalid"}})
		return
	case err != nil:
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to update transaction")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("transaction_id", id).Msg("transaction updated")
	util.Success(w, http.StatusOK, "transaction updated", tx)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid transaction id")
		return
	}

	tx, err := h.transactions.SoftDelete(r.Context(), userID, id, nil)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrAlreadyDeleted) {
		util.NotFound(w, "transaction not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to delete transaction")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("transaction_id", id).Msg("transaction deleted")
	util.Success(w, http.StatusOK, "transaction deleted", tx)
}

// Restore undoes a soft delete. Only deleted transactions can be restored.
func (h *TransactionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	log := logger.FromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		util.BadRequest(w, "invalid transaction id")
		return
	}

	current, err := h.transactions.FindByID(r.Context(), userID, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && current.Active()) {
		util.NotFound(w, "no deleted transaction with this id")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to load transaction")
		util.Internal(w)
		return
	}

	tx, err := h.transactions.Restore(r.Context(), userID, id, &current.UpdatedAt)
	switch {
	case errors.Is(err, models.ErrNotFound):
		util.NotFound(w, "no deleted transaction with this id")
		return
	case errors.Is(err, models.ErrVersionMismatch):
		util.Conflict(w, "transaction was modified on the server")
		return
	case err != nil:
		log.Error().Err(err).Int64("transaction_id", id).Msg("failed to restore transaction")
		util.Internal(w)
		return
	}

	h.reports.InvalidateUser(userID)
	log.Info().Int64("transaction_id", id).Msg("transaction restored")
	util.Success(w, http.StatusOK, "transaction restored", tx)
}
