package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-tracker-server/src/models"
	"expense-tracker-server/src/money"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, user_id, category_id, client_id, type, amount::text, description, occurred_at, created_at, updated_at, deleted_at`

// bumpVersion advances updated_at even when two writes share the same NOW().
const bumpVersion = `updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')`

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TransactionStore is the Postgres record store for transactions. Every
// statement is scoped by user id.
type TransactionStore struct {
	pool *pgxpool.Pool
}

func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		t      models.Transaction
		amount string
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.CategoryID,
		&t.ClientID,
		&t.Type,
		&amount,
		&t.Description,
		&t.OccurredAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if t.Amount, err = money.Parse(amount); err != nil {
		return nil, fmt.Errorf("stored amount for transaction %d: %w", t.ID, err)
	}
	return &t, nil
}

func (s *TransactionStore) FindByID(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`
	return scanTransaction(s.pool.QueryRow(ctx, query, id, userID))
}

func (s *TransactionStore) FindByClientID(ctx context.Context, userID int64, clientID string) (*models.Transaction, error) {
	if clientID == "" {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE client_id = $1 AND user_id = $2`
	return scanTransaction(s.pool.QueryRow(ctx, query, clientID, userID))
}

func (s *TransactionStore) Create(ctx context.Context, n models.NewTransaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (user_id, category_id, client_id, type, amount, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		RETURNING ` + transactionColumns
	return scanTransaction(s.pool.QueryRow(ctx, query,
		n.UserID,
		n.CategoryID,
		n.ClientID,
		n.Type,
		n.Amount.String(),
		n.Description,
		n.OccurredAt,
	))
}

// Update applies the patch in one conditional statement. Without Restore a
// soft-deleted row is treated as missing.
func (s *TransactionStore) Update(ctx context.Context, userID, id int64, version *time.Time, p models.TransactionPatch) (*models.Transaction, error) {
	var (
		sets []string
		args = []any{id, userID}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.CategoryID.Set {
		set("category_id", p.CategoryID.Value)
	}
	if p.ClientID.Set {
		set("client_id", p.ClientID.Value)
	}
	if p.Type != nil {
		set("type", *p.Type)
	}
	if p.Amount != nil {
		args = append(args, p.Amount.String())
		sets = append(sets, fmt.Sprintf("amount = $%d::numeric", len(args)))
	}
	if p.Description.Set {
		set("description", p.Description.Value)
	}
	if p.OccurredAt != nil {
		set("occurred_at", *p.OccurredAt)
	}
	if p.Restore {
		sets = append(sets, "deleted_at = NULL")
	}
	sets = append(sets, bumpVersion)

	where := []string{"id = $1", "user_id = $2"}
	if !p.Restore {
		where = append(where, "deleted_at IS NULL")
	}
	if version != nil {
		args = append(args, *version)
		where = append(where, fmt.Sprintf("updated_at = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE transactions SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), strings.Join(where, " AND "), transactionColumns)

	t, err := scanTransaction(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, models.ErrNotFound) {
		return nil, s.classifyMiss(ctx, userID, id, version, !p.Restore)
	}
	return t, err
}

func (s *TransactionStore) SoftDelete(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	args := []any{id, userID}
	query := `UPDATE transactions SET deleted_at = NOW(), ` + bumpVersion + `
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	if version != nil {
		args = append(args, *version)
		query += ` AND updated_at = $3`
	}
	query += ` RETURNING ` + transactionColumns

	t, err := scanTransaction(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, models.ErrNotFound) {
		err = s.classifyMiss(ctx, userID, id, version, false)
		if errors.Is(err, errDeleted) {
			return nil, models.ErrAlreadyDeleted
		}
		return nil, err
	}
	return t, err
}

// Restore clears deleted_at. Restoring an active transaction returns it
// unchanged.
func (s *TransactionStore) Restore(ctx context.Context, userID, id int64, version *time.Time) (*models.Transaction, error) {
	args := []any{id, userID}
	query := `UPDATE transactions SET deleted_at = NULL, ` + bumpVersion + `
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NOT NULL`
	if version != nil {
		args = append(args, *version)
		query += ` AND updated_at = $3`
	}
	query += ` RETURNING ` + transactionColumns

	t, err := scanTransaction(s.pool.QueryRow(ctx, query, args...))
	if !errors.Is(err, models.ErrNotFound) {
		return t, err
	}
	current, err := s.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if version != nil && !current.UpdatedAt.Equal(*version) {
		return nil, models.ErrVersionMismatch
	}
	return current, nil
}

var errDeleted = errors.New("transaction is deleted")

// classifyMiss explains why a conditional write matched no row.
func (s *TransactionStore) classifyMiss(ctx context.Context, userID, id int64, version *time.Time, activeOnly bool) error {
	var (
		updatedAt time.Time
		deletedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT updated_at, deleted_at FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&updatedAt, &deletedAt)
	if err != nil {
		return translate(err)
	}
	if version != nil && !updatedAt.Equal(*version) {
		return models.ErrVersionMismatch
	}
	if deletedAt != nil {
		if activeOnly {
			return errors.Join(models.ErrNotFound, errDeleted)
		}
		return errDeleted
	}
	return fmt.Errorf("transaction %d: conditional write matched no row", id)
}

// buildFilters returns the WHERE clause for active transactions of userID.
func buildFilters(userID int64, f models.TransactionFilter, alias string) (string, []any) {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	where := []string{prefix + "user_id = $1", prefix + "deleted_at IS NULL"}
	args := []any{userID}

	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, prefix, len(args)))
	}

	switch {
	case f.Uncategorized:
		where = append(where, prefix+"category_id IS NULL")
	case f.CategoryID != nil:
		add("%scategory_id = $%d", *f.CategoryID)
	}
	if f.Type != nil {
		add("%stype = $%d", *f.Type)
	}
	if f.From != nil {
		add("%soccurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("%soccurred_at <= $%d", *f.To)
	}
	return strings.Join(where, " AND "), args
}

// ClampPage applies the default and maximum page size.
func ClampPage(limit, offset, max int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns a page of active transactions, newest first, with the total
// number matching the filter.
func (s *TransactionStore) List(ctx context.Context, userID int64, f models.TransactionFilter) (*models.TransactionPage, error) {
	where, args := buildFilters(userID, f, "")
	limit, offset := ClampPage(f.Limit, f.Offset, maxListLimit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.TransactionPage{
		Items:      items,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	}, nil
}
