package db

import (
	"context"
	"fmt"
	"strings"

	"expense-tracker-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const categoryColumns = `id, user_id, name, color, created_at, updated_at`

type CategoryStore struct {
	pool *pgxpool.Pool
}

func NewCategoryStore(pool *pgxpool.Pool) *CategoryStore {
	return &CategoryStore{pool: pool}
}

func scanCategory(row pgx.Row) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context, userID int64) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *CategoryStore) Get(ctx context.Context, userID, id int64) (*models.Category, error) {
	return scanCategory(s.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *CategoryStore) Create(ctx context.Context, userID int64, name string, color *string) (*models.Category, error) {
	query := `
		INSERT INTO categories (user_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING ` + categoryColumns
	return scanCategory(s.pool.QueryRow(ctx, query, userID, name, color))
}

func (s *CategoryStore) Update(ctx context.Context, userID, id int64, name *string, color models.Nullable[string]) (*models.Category, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id, userID}
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if color.Set {
		args = append(args, color.Value)
		sets = append(sets, fmt.Sprintf("color = $%d", len(args)))
	}
	query := fmt.Sprintf(`UPDATE categories SET %s WHERE id = $1 AND user_id = $2 RETURNING %s`,
		strings.Join(sets, ", "), categoryColumns)
	return scanCategory(s.pool.QueryRow(ctx, query, args...))
}

// Delete removes the category. Its transactions keep existing with no
// category.
func (s *CategoryStore) Delete(ctx context.Context, userID, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
