// Package saga drives one order placement across the product, inventory,
// payment, user and notification participants.
//
// The steps run strictly in sequence. Nothing is written before the product
// and stock checks pass. Once the PLACED row exists the placement is no
// longer cancellable: payment is always resolved and the final status is
// recorded.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/participant"
	"github.com/ariefcatur/go-order-saga/internal/payment"
)

const (
	StepResolveProduct = "resolve_product"
	StepCheckStock     = "check_stock"
	StepPersistOrder   = "persist_order"
	StepCollectPayment = "collect_payment"
	StepNotifyUser     = "notify_user"
)

// Placement outcomes reported to Metrics.
const (
	OutcomePlaced          = "placed"
	OutcomePaymentFailed   = "payment_failed"
	OutcomeProductNotFound = "product_not_found"
	OutcomeOutOfStock      = "out_of_stock"
	OutcomeUnavailable     = "upstream_unavailable"
	OutcomeInvalid         = "invalid_request"
)

type ProductLookup interface {
	FetchProduct(ctx context.Context, code string) (participant.Product, error)
}

type StockChecker interface {
	IsInStock(ctx context.Context, code string) (bool, error)
}

// PaymentCollector never fails: payment problems come back as a FAILED outcome.
type PaymentCollector interface {
	Collect(ctx context.Context, req participant.PaymentRequest) payment.Outcome
}

type UserLookup interface {
	FetchUser(ctx context.Context, id int64) (participant.User, error)
}

type Notifier interface {
	Send(ctx context.Context, note participant.Notification) (string, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, env orders.Envelope) error
}

type Metrics interface {
	Placement(outcome string)
	ObserveStep(step string, d time.Duration)
	NotificationSkipped(reason string)
}

type Deps struct {
	Products  ProductLookup
	Inventory StockChecker
	Payments  PaymentCollector
	Users     UserLookup
	Notifier  Notifier
	Store     orders.Store

	// Optional.
	Events   EventPublisher
	Metrics  Metrics
	Tracer   trace.Tracer
	Logger   *zap.Logger
	Producer string
}

type Orchestrator struct {
	products  ProductLookup
	inventory StockChecker
	payments  PaymentCollector
	users     UserLookup
	notifier  Notifier
	store     orders.Store

	events   EventPublisher
	metrics  Metrics
	tracer   trace.Tracer
	log      *zap.Logger
	producer string
}

func New(d Deps) (*Orchestrator, error) {
	if d.Products == nil || d.Inventory == nil || d.Payments == nil || d.Users == nil || d.Notifier == nil || d.Store == nil {
		return nil, errors.New("saga: every participant and the order store are required")
	}
	o := &Orchestrator{
		products:  d.Products,
		inventory: d.Inventory,
		payments:  d.Payments,
		users:     d.Users,
		notifier:  d.Notifier,
		store:     d.Store,
		events:    d.Events,
		metrics:   d.Metrics,
		tracer:    d.Tracer,
		log:       d.Logger,
		producer:  d.Producer,
	}
	if o.events == nil {
		o.events = nopPublisher{}
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/ariefcatur/go-order-saga/internal/saga")
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.producer == "" {
		o.producer = "order-service"
	}
	return o, nil
}

// PlaceOrder runs the placement saga. The returned error is nil whenever an
// order was persisted, even if payment failed; the order's Status tells the
// two apart. Otherwise the error wraps ErrInvalidRequest, ErrProductNotFound,
// ErrOutOfStock or ErrUpstreamUnavailable.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req orders.PlacementRequest) (orders.Order, error) {
	ctx, span := o.tracer.Start(ctx, "saga.PlaceOrder", trace.WithAttributes(
		attribute.String("product.code", req.ProductCode),
		attribute.Int64("user.id", req.UserID),
		attribute.Int("order.quantity", req.Quantity),
	))
	defer span.End()

	log := o.log.With(
		zap.String("product_code", req.ProductCode),
		zap.Int64("user_id", req.UserID),
		zap.Int("quantity", req.Quantity),
	)

	if err := req.Validate(); err != nil {
		o.metrics.Placement(OutcomeInvalid)
		return orders.Order{}, err
	}

	product, err := o.reserve(ctx, req)
	if err != nil {
		outcome := failureOutcome(err)
		o.metrics.Placement(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Info("order rejected", zap.String("outcome", outcome), zap.Error(err))
		return orders.Order{}, err
	}

	order, err := o.persist(ctx, req, product)
	if err != nil {
		o.metrics.Placement(OutcomeUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, OutcomeUnavailable)
		log.Error("persist order", zap.Error(err))
		return orders.Order{}, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	log = log.With(zap.Int64("order_id", order.ID))
	log.Info("order placed", zap.String("amount", order.Amount.String()))

	// the order exists now; the caller going away must not strand it mid-payment
	ctx = context.WithoutCancel(ctx)
	o.publish(ctx, log, orders.TopicOrderPlaced, orders.EventOrderPlaced, order.ID, orders.OrderPlacedPayload{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProductCode: order.ProductCode,
		Quantity:    order.Quantity,
		Amount:      order.Amount,
	})

	paid := o.collectPayment(ctx, log, &order)
	o.notify(ctx, log, order, product, paid)

	o.publish(ctx, log, orders.TopicOrderFinalized, orders.EventOrderFinalized, order.ID, orders.OrderFinalizedPayload{
		OrderID:     order.ID,
		FinalStatus: order.Status,
		UpdatedAt:   order.UpdatedAt,
	})

	if paid.Succeeded() {
		o.metrics.Placement(OutcomePlaced)
	} else {
		o.metrics.Placement(OutcomePaymentFailed)
	}
	return order, nil
}

// reserve runs the read-only precondition steps. It has no side effects.
func (o *Orchestrator) reserve(ctx context.Context, req orders.PlacementRequest) (participant.Product, error) {
	var product participant.Product
	err := o.step(ctx, StepResolveProduct, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		p, err := o.products.FetchProduct(ctx, req.ProductCode)
		switch participant.Classify(err) {
		case participant.KindNone:
			product = p
			return nil
		case participant.KindNotFound:
			return orders.ErrProductNotFound
		case participant.KindUnavailable, participant.KindUnexpected, participant.KindRejected:
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		return err
	})
	if err != nil {
		return participant.Product{}, &orders.PlacementError{Step: StepResolveProduct, ProductCode: req.ProductCode, Err: err}
	}

	err = o.step(ctx, StepCheckStock, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		inStock, err := o.inventory.IsInStock(ctx, req.ProductCode)
		switch participant.Classify(err) {
		case participant.KindNone:
			if !inStock {
				return orders.ErrOutOfStock
			}
			return nil
		case participant.KindNotFound, participant.KindUnavailable, participant.KindUnexpected, participant.KindRejected:
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		return err
	})
	if err != nil {
		return participant.Product{}, &orders.PlacementError{Step: StepCheckStock, ProductCode: req.ProductCode, Err: err}
	}
	return product, nil
}

func (o *Orchestrator) persist(ctx context.Context, req orders.PlacementRequest, product participant.Product) (orders.Order, error) {
	var order orders.Order
	err := o.step(ctx, StepPersistOrder, func(ctx context.Context) error {
		// last point at which cancellation is honored
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		created, err := o.store.Create(ctx, orders.Order{
			UserID:      req.UserID,
			ProductCode: req.ProductCode,
			Quantity:    req.Quantity,
			Amount:      product.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
			Status:      orders.StatusPlaced,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", orders.ErrUpstreamUnavailable, err)
		}
		order = created
		return nil
	})
	if err != nil {
		return orders.Order{}, &orders.PlacementError{Step: StepPersistOrder, ProductCode: req.ProductCode, Err: err}
	}
	return order, nil
}

// collectPayment charges the order and, when that fails, moves it to
// PAYMENT_FAILED. order is updated in place to match what was stored.
func (o *Orchestrator) collectPayment(ctx context.Context, log *zap.Logger, order *orders.Order) payment.Outcome {
	var out payment.Outcome
	_ = o.step(ctx, StepCollectPayment, func(ctx context.Context) error {
		out = o.payments.Collect(ctx, participant.PaymentRequest{
			OrderID: order.ID,
			UserID:  order.UserID,
			Amount:  order.Amount,
		})
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("payment.status", string(out.Status)),
			attribute.Bool("payment.short_circuited", out.ShortCircuited),
		)
		return nil
	})
	if out.Succeeded() {
		log.Info("payment collected", zap.Time("payment_date", out.PaymentDate))
		return out
	}

	log.Warn("payment not collected",
		zap.String("reason", out.Reason),
		zap.Bool("short_circuited", out.ShortCircuited))

	if err := o.store.UpdateStatus(ctx, order.ID, orders.StatusPlaced, orders.StatusPaymentFailed); err != nil {
		log.Error("mark order payment failed", zap.Error(err))
	} else if stored, err := o.store.Get(ctx, order.ID); err == nil {
		*order = stored
	} else {
		order.Status = orders.StatusPaymentFailed
	}

	o.publish(ctx, log, orders.TopicPaymentFailed, orders.EventPaymentFailed, order.ID, orders.PaymentFailedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.Amount,
		Reason:  out.Reason,
	})
	return out
}

// notify is best effort: a missing user or a failed send is logged and counted.
func (o *Orchestrator) notify(ctx context.Context, log *zap.Logger, order orders.Order, product participant.Product, paid payment.Outcome) {
	_ = o.step(ctx, StepNotifyUser, func(ctx context.Context) error {
		user, err := o.users.FetchUser(ctx, order.UserID)
		switch kind := participant.Classify(err); kind {
		case participant.KindNone:
		case participant.KindNotFound:
			o.metrics.NotificationSkipped("user_not_found")
			log.Info("user not found, skipping notification")
			return nil
		case participant.KindUnavailable, participant.KindUnexpected, participant.KindRejected:
			o.metrics.NotificationSkipped("user_lookup_failed")
			log.Warn("user lookup failed, skipping notification", zap.Stringer("kind", kind), zap.Error(err))
			return err
		}

		ack, err := o.notifier.Send(ctx, participant.Notification{
			OrderID:   order.ID,
			UserID:    user.ID,
			UserEmail: user.Email,
			Message:   message(product, paid),
		})
		if err != nil {
			o.metrics.NotificationSkipped("send_failed")
			log.Warn("send notification", zap.Error(err))
			return err
		}
		log.Debug("notification sent", zap.String("ack", ack))
		return nil
	})
}

func message(p participant.Product, paid payment.Outcome) string {
	if paid.Succeeded() {
		return "Order placed for product: " + p.Name
	}
	return "Order placed for product: " + p.Name + ", but the payment could not be completed"
}

func (o *Orchestrator) publish(ctx context.Context, log *zap.Logger, topic, eventType string, orderID int64, payload any) {
	env, err := orders.NewEnvelope(eventType, o.producer, orderID, payload)
	if err != nil {
		log.Error("build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if err := o.events.PublishEvent(ctx, topic, env); err != nil {
		log.Warn("publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "saga."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveStep(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, orders.ErrProductNotFound):
		return OutcomeProductNotFound
	case errors.Is(err, orders.ErrOutOfStock):
		return OutcomeOutOfStock
	default:
		return OutcomeUnavailable
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, string, orders.Envelope) error { return nil }

type nopMetrics struct{}

func (nopMetrics) Placement(string)                  {}
func (nopMetrics) ObserveStep(string, time.Duration) {}
func (nopMetrics) NotificationSkipped(string)        {}
