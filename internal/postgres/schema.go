package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; order rows are never deleted, payments only ever
// receive FAILED records written by the payment fallback.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT        NOT NULL,
		product_code TEXT          NOT NULL,
		quantity     INT           NOT NULL CHECK (quantity >= 1),
		amount       NUMERIC(15,2) NOT NULL,
		status       TEXT          NOT NULL,
		order_date   TIMESTAMPTZ   NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ   NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id           BIGSERIAL PRIMARY KEY,
		order_id     BIGINT        NOT NULL REFERENCES orders(id),
		user_id      BIGINT        NOT NULL,
		amount       NUMERIC(15,2) NOT NULL,
		status       TEXT          NOT NULL,
		reason       TEXT          NOT NULL DEFAULT '',
		payment_date TIMESTAMPTZ   NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS payments_order_id_idx ON payments(order_id)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
