package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"expense-tracker-server/src/logger"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/models"
	"expense-tracker-server/src/util"

	"github.com/google/uuid"
)

// Reconciler applies a batch of offline operations for one user.
type Reconciler interface {
	Reconcile(ctx context.Context, userID int64, ops []models.SyncOperation) []models.SyncResult
}

type AttemptLister interface {
	ListForUser(ctx context.Context, userID int64, f models.SyncAttemptFilter) ([]models.SyncAttempt, error)
}

type SyncHandler struct {
	engine   Reconciler
	attempts AttemptLister
	reports  ReportInvalidator
	maxItems int
}

func NewSyncHandler(engine Reconciler, attempts AttemptLister, reports ReportInvalidator, maxItems int) *SyncHandler {
	if reports == nil {
		reports = noopInvalidator{}
	}
	return &SyncHandler{engine: engine, attempts: attempts, reports: reports, maxItems: maxItems}
}

type syncRequest struct {
	Items []json.RawMessage `json:"items"`
}

type syncResponse struct {
	Results []models.SyncResult `json:"results"`
}

// decodeBatch rejects batches that are structurally unusable. Problems with
// the fields of a single item are left to the engine so that they only fail
// that item.
func (h *SyncHandler) decodeBatch(req syncRequest) ([]models.SyncOperation, []util.FieldError) {
	if len(req.Items) == 0 {
		return nil, []util.FieldError{{Path: "items", Message: "at least one item is required", Code: "min"}}
	}
	if h.maxItems > 0 && len(req.Items) > h.maxItems {
		return nil, []util.FieldError{{
			Path:    "items",
			Message: fmt.Sprintf("must contain at most %d items", h.maxItems),
			Code:    "max",
		}}
	}

	var details []util.FieldError
	ops := make([]models.SyncOperation, 0, len(req.Items))
	for i, raw := range req.Items {
		path := "items." + strconv.Itoa(i)
		op, err := models.DecodeSyncOperation(raw)
		if err != nil {
			details = append(details, util.FieldError{Path: path, Message: "must be an object with a string operation", Code: "invalid"})
			continue
		}
		switch {
		case op.Operation == "":
			details = append(details, util.FieldError{Path: path + ".operation", Message: "operation is required", Code: "required"})
		case !op.Operation.Valid():
			details = append(details, util.FieldError{Path: path + ".operation", Message: "must be one of: create update delete", Code: "oneof"})
		}
		ops = append(ops, op)
	}
	if len(details) > 0 {
		return nil, details
	}
	return ops, nil
}

// Sync reconciles the client's queued operations and returns one result per
// item, in order.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		util.Unauthorized(w, "authentication required")
		return
	}
	log := logger.FromContext(r.Context())

	var req syncRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.BadRequest(w, err.Error())
		return
	}
	ops, details := h.decodeBatch(req)
	if details != nil {
		util.ValidationFailed(w, details)
		return
	}

	results := h.engine.Reconcile(r.Context(), userID, ops)

	for _, res := range results {
		if res.Status == models.SyncApplied {
			h.reports.InvalidateUser(userID)
			break
		}
	}

	log.Debug().Int("items", len(ops)).Msg("sync request handled")
	util.Success(w, http.StatusOK, "", syncResponse{Results: results})
}

// Attempts lists the caller's sync audit trail, newest first.
func (h *SyncHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var (
		f       models.SyncAttemptFilter
		details []util.FieldError
		q       = r.URL.Query()
	)
	if v := q.Get("batchId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			details = append(details, util.FieldError{Path: "batchId", Message: "must be a UUID", Code: "uuid"})
		}
		f.BatchID = &id
	}
	if v := q.Get("transactionId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			details = append(details, util.FieldError{Path: "transactionId", Message: "must be a positive integer", Code: "invalid"})
		}
		f.TransactionID = &id
	}
	if v := q.Get("status"); v != "" {
		status := models.SyncStatus(v)
		switch status {
		case models.SyncApplied, models.SyncSkipped, models.SyncConflict, models.SyncError:
			f.Status = &status
		default:
			details = append(details, util.FieldError{Path: "status", Message: "must be one of: applied skipped conflict error", Code: "oneof"})
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, util.FieldError{Path: "limit", Message: "must be a positive integer", Code: "invalid"})
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, util.FieldError{Path: "offset", Message: "must be a non-negative integer", Code: "invalid"})
		}
		f.Offset = n
	}
	if len(details) > 0 {
		util.ValidationFailed(w, details)
		return
	}

	attempts, err := h.attempts.ListForUser(r.Context(), userID, f)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to list sync attempts")
		util.Internal(w)
		return
	}
	util.Success(w, http.StatusOK, "", map[string]any{"items": attempts})
}
