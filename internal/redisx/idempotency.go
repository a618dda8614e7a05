package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

type ReserveResult int

const (
	// Reserved means the caller owns the key and must Complete or Release it.
	Reserved ReserveResult = iota
	// InFlight means another request holding the same key has not finished.
	InFlight
	// Replayed means the key already maps to a finished order.
	Replayed
	// Mismatch means the key was used before for a different request body.
	Mismatch
)

// Idempotency guards order placement with client supplied keys. Each key is
// stored as "<pending|order id>|<request fingerprint>".
type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency { return &Idempotency{rdb: rdb} }

// Reserve claims key for the request identified by fingerprint. For Replayed
// it also returns the stored order id.
func (i *Idempotency) Reserve(ctx context.Context, key, fingerprint string) (ReserveResult, int64, error) {
	k := fmt.Sprintf(KeyIdemOrderPlace, key)
	ok, err := i.rdb.SetNX(ctx, k, pending+"|"+fingerprint, TTLIdempotency).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return Reserved, 0, nil
	}

	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as a concurrent holder
		return InFlight, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read idempotency key: %w", err)
	}
	state, stored, found := strings.Cut(v, "|")
	if !found {
		return 0, 0, fmt.Errorf("corrupt idempotency value %q", v)
	}
	if stored != fingerprint {
		return Mismatch, 0, nil
	}
	if state == pending {
		return InFlight, 0, nil
	}
	id, err := strconv.ParseInt(state, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("corrupt idempotency value %q: %w", v, err)
	}
	return Replayed, id, nil
}

func (i *Idempotency) Complete(ctx context.Context, key, fingerprint string, orderID int64) error {
	v := strconv.FormatInt(orderID, 10) + "|" + fingerprint
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, key), v, TTLIdempotency).Err()
}

// Release drops a reservation so the client may retry with the same key.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderPlace, key)).Err()
}
