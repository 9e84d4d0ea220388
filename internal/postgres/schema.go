package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	stock      INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	total     DOUBLE PRECISION NOT NULL DEFAULT 0,
	placed_at TIMESTAMPTZ NOT NULL,
	products  JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_user_id_placed_at ON orders (user_id, placed_at DESC);
`

// EnsureSchema creates the catalog and order tables when missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}
