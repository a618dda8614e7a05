package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres-backed Store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, product_code, quantity, amount::text, status, order_date, updated_at`

func (r *Repo) Create(ctx context.Context, o Order) (Order, error) {
	if !o.Status.Valid() {
		return Order{}, fmt.Errorf("create order: unknown status %q", o.Status)
	}
	row := r.DB.QueryRow(ctx, `
		INSERT INTO orders(user_id, product_code, quantity, amount, status)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING `+orderColumns,
		o.UserID, o.ProductCode, o.Quantity, o.Amount.String(), string(o.Status),
	)
	saved, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return saved, nil
}

// UpdateStatus is a compare-and-set on the current status so a row can only
// move along an allowed edge once.
func (r *Repo) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %d is %s, not %s", ErrInvalidTransition, id, cur.Status, from)
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: id=%d", ErrOrderNotFound, id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	return o, nil
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		amount string
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.ProductCode, &o.Quantity, &amount, &status, &o.OrderDate, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Order{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	o.Amount = d
	o.Status = Status(status)
	return o, nil
}
