package db

import (
	"errors"
	"strings"

	"expense-tracker-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Foreign keys to users are named <table>_user_id_fkey by Postgres.
const userForeignKeySuffix = "_user_id_fkey"

// translate maps driver errors onto the model sentinels, keeping the original
// error in the chain.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return errors.Join(models.ErrDuplicate, err)
		case foreignKeyViolation:
			if strings.HasSuffix(pgErr.ConstraintName, userForeignKeySuffix) {
				return errors.Join(models.ErrOwnerMissing, err)
			}
			return errors.Join(models.ErrInvalidReference, err)
		}
	}
	return err
}
