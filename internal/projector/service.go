// Package projector keeps the order status cache in step with the
// order.finalized stream.
package projector

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-saga/internal/kafka"
	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
)

type Deduper interface {
	MarkProcessed(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type StatusWriter interface {
	Set(ctx context.Context, orderID int64, st redisx.CachedStatus) error
}

type Metrics interface {
	Projected(result string)
}

type Service struct {
	Dedup   Deduper
	Cache   StatusWriter
	Metrics Metrics
	Log     *zap.Logger
}

// HandleOrderFinalized: dipasang sebagai handler consumer.
func (s *Service) HandleOrderFinalized(ctx context.Context, m kafkago.Message) error {
	ctx = kafkax.ExtractTraceContext(ctx, m.Headers)
	ctx, span := otel.Tracer("github.com/ariefcatur/go-order-saga/internal/projector").Start(ctx, "projector.HandleOrderFinalized")
	defer span.End()

	// 1) decode envelope
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		s.count("malformed")
		s.log().Warn("drop malformed event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderFinalized {
		s.count("ignored")
		return nil
	}
	span.SetAttributes(attribute.String("event.id", env.EventID))

	// 2) dedup via Redis (pakai event_id)
	first, err := s.Dedup.MarkProcessed(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		s.count("duplicate")
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.OrderFinalizedPayload](env.Payload)
	if err != nil {
		s.count("malformed")
		s.log().Warn("drop malformed payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	// 4) tulis cache; kalau gagal, lepas dedup biar bisa diulang
	if err := s.Cache.Set(ctx, p.OrderID, redisx.CachedStatus{Status: string(p.FinalStatus), UpdatedAt: p.UpdatedAt}); err != nil {
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			s.log().Warn("forget dedup key", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return fmt.Errorf("cache status for order %d: %w", p.OrderID, err)
	}

	s.count("applied")
	s.log().Debug("status projected",
		zap.Int64("order_id", p.OrderID),
		zap.String("status", string(p.FinalStatus)),
		zap.String("trace_id", env.TraceID))
	return nil
}

func (s *Service) count(result string) {
	if s.Metrics != nil {
		s.Metrics.Projected(result)
	}
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
