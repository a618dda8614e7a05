package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Ledger persists the FAILED records written by the fallback path.
type Ledger interface {
	RecordFailure(ctx context.Context, r Record) (Record, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Record, error)
}

type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) RecordFailure(ctx context.Context, r Record) (Record, error) {
	err := l.DB.QueryRow(ctx, `
		INSERT INTO payments(order_id, user_id, amount, status, reason, payment_date)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id`,
		r.OrderID, r.UserID, r.Amount.String(), string(StatusFailed), r.Reason, r.PaymentDate,
	).Scan(&r.ID)
	if err != nil {
		return Record{}, fmt.Errorf("insert payment record: %w", err)
	}
	r.Status = StatusFailed
	return r, nil
}

func (l *PGLedger) ListByOrder(ctx context.Context, orderID int64) ([]Record, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, order_id, user_id, amount::text, status, reason, payment_date
		FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r              Record
			amount, status string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &r.UserID, &amount, &status, &r.Reason, &r.PaymentDate); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", amount, err)
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoryLedger is a thread-safe in-process Ledger.
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) RecordFailure(_ context.Context, r Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	r.ID = l.nextID
	r.Status = StatusFailed
	if r.PaymentDate.IsZero() {
		r.PaymentDate = time.Now().UTC()
	}
	l.records = append(l.records, r)
	return r, nil
}

func (l *MemoryLedger) ListByOrder(_ context.Context, orderID int64) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
