package db

import (
	"context"
	"fmt"

	"expense-tracker-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxAuditLimit = 200

// AuditStore persists sync attempts. Rows are only ever inserted.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Record(ctx context.Context, a models.SyncAttempt) error {
	query := `
		INSERT INTO transaction_sync_attempts
			(user_id, batch_id, transaction_id, client_id, operation, payload, status, message, processed_at)
		VALUES ($1, $2::uuid, $3, $4, $5, $6::jsonb, $7, $8, $9)
	`
	payload := string(a.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.pool.Exec(ctx, query,
		a.UserID,
		a.BatchID.String(),
		a.TransactionID,
		a.ClientID,
		a.Operation,
		payload,
		a.Status,
		a.Message,
		a.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync attempt: %w", err)
	}
	return nil
}

// ListForUser returns the most recent attempts first.
func (s *AuditStore) ListForUser(ctx context.Context, userID int64, f models.SyncAttemptFilter) ([]models.SyncAttempt, error) {
	where := "user_id = $1"
	args := []any{userID}
	if f.BatchID != nil {
		args = append(args, f.BatchID.String())
		where += fmt.Sprintf(" AND batch_id = $%d::uuid", len(args))
	}
	if f.TransactionID != nil {
		args = append(args, *f.TransactionID)
		where += fmt.Sprintf(" AND transaction_id = $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit, offset := ClampPage(f.Limit, f.Offset, maxAuditLimit)

	query := fmt.Sprintf(`
		SELECT id, user_id, batch_id::text, transaction_id, client_id, operation, payload::text, status, message, processed_at
		FROM transaction_sync_attempts
		WHERE %s
		ORDER BY processed_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []models.SyncAttempt{}
	for rows.Next() {
		var (
			a              models.SyncAttempt
			batch, payload string
		)
		err := rows.Scan(&a.ID, &a.UserID, &batch, &a.TransactionID, &a.ClientID, &a.Operation, &payload, &a.Status, &a.Message, &a.ProcessedAt)
		if err != nil {
			return nil, err
		}
		if err := a.BatchID.UnmarshalText([]byte(batch)); err != nil {
			return nil, fmt.Errorf("batch id %q: %w", batch, err)
		}
		a.Payload = []byte(payload)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
