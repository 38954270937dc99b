package db

import (
	"context"
	"fmt"

	"expense-tracker-server/src/models"
	"expense-tracker-server/src/money"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const maxCategoryReportLimit = 200

// Sums are selected as text so that no precision is lost on the way to
// money.Amount.
const sums = `
	COALESCE(SUM(CASE WHEN %[1]stype = 'income' THEN %[1]samount ELSE 0 END), 0)::text,
	COALESCE(SUM(CASE WHEN %[1]stype = 'expense' THEN %[1]samount ELSE 0 END), 0)::text,
	COUNT(*)`

type ReportStore struct {
	pool *pgxpool.Pool
}

func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// totals parses aggregated sums. They are not range checked since a sum may
// exceed the per-row column limit.
func totals(income, expense string) (money.Amount, money.Amount, money.Amount, error) {
	in, err := decimal.NewFromString(income)
	if err != nil {
		return money.Amount{}, money.Amount{}, money.Amount{}, fmt.Errorf("income sum %q: %w", income, err)
	}
	out, err := decimal.NewFromString(expense)
	if err != nil {
		return money.Amount{}, money.Amount{}, money.Amount{}, fmt.Errorf("expense sum %q: %w", expense, err)
	}
	return money.Normalize(in), money.Normalize(out), money.Normalize(in.Sub(out)), nil
}

func (s *ReportStore) Summary(ctx context.Context, userID int64, f models.TransactionFilter) (*models.Summary, error) {
	where, args := buildFilters(userID, f, "")
	query := fmt.Sprintf(`SELECT `+sums+` FROM transactions WHERE %s`, "", where)

	var (
		income, expense string
		summary         models.Summary
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&income, &expense, &summary.Transactions); err != nil {
		return nil, err
	}
	var err error
	if summary.Income, summary.Expense, summary.Balance, err = totals(income, expense); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *ReportStore) Monthly(ctx context.Context, userID int64, f models.TransactionFilter) ([]models.MonthlyTotal, error) {
	where, args := buildFilters(userID, f, "")
	query := fmt.Sprintf(`
		SELECT to_char(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM') AS period, `+sums+`
		FROM transactions
		WHERE %s
		GROUP BY period
		ORDER BY period ASC`, "", where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := []models.MonthlyTotal{}
	for rows.Next() {
		var (
			m               models.MonthlyTotal
			income, expense string
		)
		if err := rows.Scan(&m.Period, &income, &expense, &m.Transactions); err != nil {
			return nil, err
		}
		if m.Income, m.Expense, m.Balance, err = totals(income, expense); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// ByCategory totals transactions per category, uncategorized last.
func (s *ReportStore) ByCategory(ctx context.Context, userID int64, f models.TransactionFilter) (*models.CategoryReport, error) {
	where, args := buildFilters(userID, f, "t")
	limit, offset := ClampPage(f.Limit, f.Offset, maxCategoryReportLimit)

	base := fmt.Sprintf(`
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id
		WHERE %s`, where)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM (SELECT t.category_id `+base+` GROUP BY t.category_id) grouped`, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT t.category_id, MAX(c.name), MAX(c.color), `+sums+`
		%s
		GROUP BY t.category_id
		ORDER BY MAX(c.name) IS NULL, MAX(c.name) ASC, t.category_id ASC
		LIMIT $%d OFFSET $%d`, "t.", base, len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.CategoryTotal{}
	for rows.Next() {
		var (
			ct              models.CategoryTotal
			name            *string
			income, expense string
		)
		if err := rows.Scan(&ct.CategoryID, &name, &ct.Color, &income, &expense, &ct.Transactions); err != nil {
			return nil, err
		}
		ct.Name = models.UncategorizedName
		if name != nil {
			ct.Name = *name
		}
		if ct.Income, ct.Expense, ct.Balance, err = totals(income, expense); err != nil {
			return nil, err
		}
		items = append(items, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.CategoryReport{
		Items:      items,
		Pagination: models.Pagination{Total: total, Limit: limit, Offset: offset},
	}, nil
}
