package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type migration struct {
	name string
	sql  string
}

// migrations run in order, each in its own transaction, and are recorded in
// schema_migrations so they apply once. Append only.
var migrations = []migration{
	{"create_users", `
		CREATE TABLE users (
			id            BIGSERIAL PRIMARY KEY,
			email         VARCHAR(255) NOT NULL UNIQUE,
			name          VARCHAR(100),
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"create_refresh_tokens", `
		CREATE TABLE refresh_tokens (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash CHAR(64) NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX refresh_tokens_user_idx ON refresh_tokens (user_id)`},
	{"create_password_reset_tokens", `
		CREATE TABLE password_reset_tokens (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash CHAR(64) NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			used_at    TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"create_categories", `
		CREATE TABLE categories (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       VARCHAR(100) NOT NULL,
			color      CHAR(7),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, name),
			UNIQUE (id, user_id)
		)`},
	{"create_transactions", `
		CREATE TABLE transactions (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category_id BIGINT,
			client_id   VARCHAR(100),
			type        VARCHAR(10) NOT NULL CHECK (type IN ('income', 'expense')),
			amount      NUMERIC(14,2) NOT NULL,
			description VARCHAR(255),
			occurred_at TIMESTAMPTZ NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at  TIMESTAMPTZ,
			UNIQUE (user_id, client_id),
			CONSTRAINT transactions_category_fkey FOREIGN KEY (category_id, user_id)
				REFERENCES categories (id, user_id) ON DELETE SET NULL (category_id)
		);
		CREATE INDEX transactions_user_occurred_idx ON transactions (user_id, occurred_at DESC) WHERE deleted_at IS NULL`},
	{"create_transaction_sync_attempts", `
		CREATE TABLE transaction_sync_attempts (
			id             BIGSERIAL PRIMARY KEY,
			user_id        BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			batch_id       UUID NOT NULL,
			transaction_id BIGINT REFERENCES transactions(id) ON DELETE SET NULL,
			client_id      TEXT,
			operation      VARCHAR(10) NOT NULL CHECK (operation IN ('create', 'update', 'delete')),
			payload        JSONB NOT NULL,
			status         VARCHAR(10) NOT NULL CHECK (status IN ('applied', 'skipped', 'conflict', 'error')),
			message        VARCHAR(255),
			processed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX transaction_sync_attempts_user_idx ON transaction_sync_attempts (user_id, processed_at DESC);
		CREATE INDEX transaction_sync_attempts_batch_idx ON transaction_sync_attempts (batch_id)`},
}

// migrationLock serializes concurrent server starts.
const migrationLock = 7262091

// Migrate applies pending migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLock); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLock)

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, m.name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if applied {
			log.Debug().Str("migration", m.name).Msg("migration already applied")
			continue
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("applied migration")
	}

	return nil
}
