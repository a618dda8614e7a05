package redisx

import "time"

const (
	// Idempotency place order: idem:order:place:{idempotency_key} -> "pending|{fingerprint}" or "{order_id}|{fingerprint}"
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
