package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"expense-tracker-server/src/models"
	"expense-tracker-server/src/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MaxMessageLength caps result and audit messages, in characters.
	MaxMessageLength = 250

	// Column limits of the transactions table.
	maxClientIDLength    = 100
	maxDescriptionLength = 255

	defaultItemTimeout = 5 * time.Second
	internalErrMessage = "internal error while processing item"
)

// Engine reconciles batches of offline transaction operations against the
// record store. Items are processed sequentially in submission order and
// each one is isolated: a failing item yields an error result and the batch
// continues.
type Engine struct {
	store       RecordStore
	audit       AuditTrail
	log         zerolog.Logger
	itemTimeout time.Duration
	now         func() time.Time
	newBatchID  func() uuid.UUID
}

type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithItemTimeout bounds the store calls made for a single item.
func WithItemTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.itemTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store RecordStore, audit AuditTrail, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		audit:       audit,
		log:         zerolog.Nop(),
		itemTimeout: defaultItemTimeout,
		now:         time.Now,
		newBatchID:  uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is what processing one item produced. detail is kept for the
// audit row when it differs from the message returned to the client.
type outcome struct {
	status  models.SyncStatus
	message string
	detail  string
	tx      *models.Transaction
	txID    *int64
}

// itemError is a failure whose text is safe to return to the client.
type itemError struct{ msg string }

func (e *itemError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &itemError{msg: fmt.Sprintf(format, args...)}
}

// Reconcile processes ops for userID and returns one result per op, in the
// same order. Cancellation of ctx does not stop a batch once started.
func (e *Engine) Reconcile(ctx context.Context, userID int64, ops []models.SyncOperation) []models.SyncResult {
	base := context.WithoutCancel(ctx)
	batchID := e.newBatchID()
	log := e.log.With().Int64("user_id", userID).Str("batch_id", batchID.String()).Logger()

	results := make([]models.SyncResult, len(ops))
	counts := make(map[models.SyncStatus]int, 4)
	started := e.now()

	for i := range ops {
		op := &ops[i]
		out := e.process(base, userID, op)

		results[i] = buildResult(op, out)
		counts[out.status]++

		e.recordAttempt(base, log, userID, batchID, op, out)

		if out.status == models.SyncError {
			log.Warn().
				Int("index", i).
				Str("operation", string(op.Operation)).
				Str("client_id", op.ClientRef()).
				Str("detail", out.detail).
				Msg("sync item failed")
		}
	}

	log.Info().
		Int("items", len(ops)).
		Int("applied", counts[models.SyncApplied]).
		Int("skipped", counts[models.SyncSkipped]).
		Int("conflicts", counts[models.SyncConflict]).
		Int("errors", counts[models.SyncError]).
		Dur("elapsed", e.now().Sub(started)).
		Msg("sync batch reconciled")

	return results
}

// process runs one item inside its own timeout and turns every failure,
// including a panic, into an error outcome.
func (e *Engine) process(base context.Context, userID int64, op *models.SyncOperation) (out outcome) {
	ctx, cancel := context.WithTimeout(base, e.itemTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			out = outcome{
				status:  models.SyncError,
				message: internalErrMessage,
				detail:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	res, err := e.apply(ctx, userID, op)
	if err != nil {
		return errorOutcome(err, res.txID)
	}
	return res
}

func errorOutcome(err error, txID *int64) outcome {
	var ie *itemError
	if errors.As(err, &ie) {
		return outcome{status: models.SyncError, message: ie.msg, detail: ie.msg, txID: txID}
	}
	if errors.Is(err, models.ErrOwnerMissing) {
		return outcome{status: models.SyncError, message: "account no longer exists", detail: err.Error(), txID: txID}
	}
	if errors.Is(err, models.ErrInvalidReference) {
		return outcome{status: models.SyncError, message: "category not found", detail: err.Error(), txID: txID}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return outcome{status: models.SyncError, message: "timed out while processing item", detail: err.Error(), txID: txID}
	}
	return outcome{status: models.SyncError, message: internalErrMessage, detail: err.Error(), txID: txID}
}

type fields struct {
	typ        models.TransactionType
	amount     money.Amount
	occurredAt time.Time
}

// validate checks the fields create and update require. The HTTP boundary
// rejects these earlier; the engine still refuses to write without them.
func validate(op *models.SyncOperation) (fields, error) {
	var f fields
	if op.Type == nil || *op.Type == "" {
		return f, invalid("type is required")
	}
	if !op.Type.Valid() {
		return f, invalid("type must be income or expense")
	}
	amount, err := money.ParseJSON(op.Amount)
	if err != nil {
		return f, invalid("%s", err.Error())
	}
	if op.OccurredAt == nil || op.OccurredAt.IsZero() {
		return f, invalid("occurredAt is required")
	}
	if utf8.RuneCountInString(op.ClientRef()) > maxClientIDLength {
		return f, invalid("clientId must be at most %d characters", maxClientIDLength)
	}
	if op.Description.Value != nil && utf8.RuneCountInString(*op.Description.Value) > maxDescriptionLength {
		return f, invalid("description must be at most %d characters", maxDescriptionLength)
	}
	f.typ = *op.Type
	f.amount = amount
	f.occurredAt = *op.OccurredAt
	return f, nil
}

// resolve finds the record an operation refers to. A server id is
// authoritative when present; otherwise the client id is used.
func (e *Engine) resolve(ctx context.Context, userID int64, op *models.SyncOperation) (*models.Transaction, error) {
	var (
		tx  *models.Transaction
		err error
	)
	switch {
	case op.TargetID() != nil:
		tx, err = e.store.FindByID(ctx, userID, *op.TargetID())
	case op.ClientRef() != "":
		tx, err = e.store.FindByClientID(ctx, userID, op.ClientRef())
	default:
		return nil, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return tx, nil
}

func (e *Engine) apply(ctx context.Context, userID int64, op *models.SyncOperation) (outcome, error) {
	if !op.Operation.Valid() {
		return outcome{}, invalid("unknown operation %q", op.Operation)
	}
	if op.Malformed != "" {
		return outcome{}, invalid("%s", op.Malformed)
	}

	var f fields
	if op.Operation != models.SyncDelete {
		var err error
		if f, err = validate(op); err != nil {
			return outcome{}, err
		}
	}

	existing, err := e.resolve(ctx, userID, op)
	if err != nil {
		return outcome{}, err
	}

	var txID *int64
	if existing != nil {
		txID = &existing.ID
	}

	action := Decide(op.Operation, op.UpdatedAt, existing)
	switch action {
	case ActionSkipNotFound:
		return outcome{status: models.SyncSkipped, message: msgNotFound}, nil

	case ActionSkipDeleted:
		return outcome{status: models.SyncSkipped, message: msgAlreadyDeleted, txID: txID}, nil

	case ActionConflict:
		return conflictOutcome(existing), nil

	case ActionDelete:
		tx, err := e.store.SoftDelete(ctx, userID, existing.ID, &existing.UpdatedAt)
		switch {
		case errors.Is(err, models.ErrVersionMismatch):
			return conflictOutcome(existing), nil
		case errors.Is(err, models.ErrAlreadyDeleted):
			return outcome{status: models.SyncSkipped, message: msgAlreadyDeleted, txID: txID}, nil
		case errors.Is(err, models.ErrNotFound):
			return outcome{status: models.SyncSkipped, message: msgNotFound}, nil
		case err != nil:
			return outcome{txID: txID}, fmt.Errorf("soft delete: %w", err)
		}
		return applied(tx, "transaction deleted"), nil

	case ActionCreate:
		tx, err := e.store.Create(ctx, models.NewTransaction{
			UserID:      userID,
			CategoryID:  op.CategoryID.Value,
			ClientID:    op.ClientID.Value,
			Type:        f.typ,
			Amount:      f.amount,
			Description: op.Description.Value,
			OccurredAt:  f.occurredAt,
		})
		if errors.Is(err, models.ErrDuplicate) {
			return outcome{
				status:  models.SyncConflict,
				message: "conflict: clientId already belongs to another transaction",
			}, nil
		}
		if err != nil {
			return outcome{}, fmt.Errorf("create: %w", err)
		}
		return applied(tx, "transaction created"), nil

	case ActionUpdate, ActionRestoreUpdate:
		patch := models.TransactionPatch{
			CategoryID:  op.CategoryID,
			ClientID:    op.ClientID,
			Type:        &f.typ,
			Amount:      &f.amount,
			Description: op.Description,
			OccurredAt:  &f.occurredAt,
			Restore:     action == ActionRestoreUpdate,
		}
		tx, err := e.store.Update(ctx, userID, existing.ID, &existing.UpdatedAt, patch)
		switch {
		case errors.Is(err, models.ErrVersionMismatch):
			return conflictOutcome(existing), nil
		case errors.Is(err, models.ErrDuplicate):
			return outcome{
				status:  models.SyncConflict,
				message: "conflict: clientId already belongs to another transaction",
				txID:    txID,
			}, nil
		case err != nil:
			return outcome{txID: txID}, fmt.Errorf("update: %w", err)
		}
		if action == ActionRestoreUpdate {
			return applied(tx, "transaction restored and updated"), nil
		}
		return applied(tx, "transaction updated"), nil
	}

	return outcome{}, fmt.Errorf("unhandled action %s", action)
}

func applied(tx *models.Transaction, detail string) outcome {
	return outcome{status: models.SyncApplied, detail: detail, tx: tx, txID: &tx.ID}
}

func conflictOutcome(existing *models.Transaction) outcome {
	return outcome{status: models.SyncConflict, message: msgConflict, tx: existing, txID: &existing.ID}
}

func buildResult(op *models.SyncOperation, out outcome) models.SyncResult {
	res := models.SyncResult{
		ClientID:  op.ClientID.Value,
		Operation: op.Operation,
		Status:    out.status,
		Message:   Truncate(out.message),
	}
	if out.txID != nil {
		id := *out.txID
		res.ServerID = &id
	}
	if out.status == models.SyncApplied && out.tx != nil {
		updatedAt := out.tx.UpdatedAt
		res.UpdatedAt = &updatedAt
	}
	return res
}

// recordAttempt writes the audit row for one item. A failed write is logged
// and does not affect the batch.
func (e *Engine) recordAttempt(base context.Context, log zerolog.Logger, userID int64, batchID uuid.UUID, op *models.SyncOperation, out outcome) {
	message := out.detail
	if message == "" {
		message = out.message
	}
	attempt := models.SyncAttempt{
		UserID:        userID,
		BatchID:       batchID,
		TransactionID: out.txID,
		ClientID:      op.ClientID.Value,
		Operation:     op.Operation,
		Payload:       snapshot(op),
		Status:        out.status,
		ProcessedAt:   e.now(),
	}
	if message != "" {
		m := Truncate(message)
		attempt.Message = &m
	}

	ctx, cancel := context.WithTimeout(base, e.itemTimeout)
	defer cancel()

	if err := e.audit.Record(ctx, attempt); err != nil {
		log.Error().
			Err(err).
			Str("operation", string(op.Operation)).
			Str("client_id", op.ClientRef()).
			Str("status", string(out.status)).
			Msg("failed to record sync attempt")
	}
}

// snapshot returns the payload persisted with the audit row: the item as
// sent when available, otherwise its re-encoded form.
func snapshot(op *models.SyncOperation) json.RawMessage {
	if len(op.Raw) > 0 && json.Valid(op.Raw) {
		return op.Raw
	}
	b, err := json.Marshal(op)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Truncate caps s at MaxMessageLength characters, marking the cut with "...".
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	return string(r[:MaxMessageLength-3]) + "..."
}
