// Package payment guards the remote payment participant with a circuit
// breaker, bounded retries and a fallback that records FAILED payments.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-saga/internal/breaker"
	"github.com/ariefcatur/go-order-saga/internal/participant"
)

// Remote is the single-attempt payment call being guarded.
type Remote interface {
	SubmitPayment(ctx context.Context, req participant.PaymentRequest) (participant.PaymentReceipt, error)
}

type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Observer receives guard events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Retried()
	ShortCircuited()
	Fallback(reason string)
}

type nopObserver struct{}

func (nopObserver) Retried()        {}
func (nopObserver) ShortCircuited() {}
func (nopObserver) Fallback(string) {}

type GuardOptions struct {
	Retry    RetryPolicy
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time
}

type GuardedClient struct {
	remote  Remote
	breaker *breaker.Breaker
	ledger  Ledger
	retry   RetryPolicy
	obs     Observer
	log     *zap.Logger
	now     func() time.Time
}

func NewGuardedClient(remote Remote, b *breaker.Breaker, ledger Ledger, opts GuardOptions) (*GuardedClient, error) {
	if remote == nil || b == nil || ledger == nil {
		return nil, errors.New("payment: remote, breaker and ledger are required")
	}
	if opts.Retry.MaxRetries < 0 {
		return nil, errors.New("payment: max retries must not be negative")
	}
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry.InitialInterval = 200 * time.Millisecond
	}
	if opts.Retry.MaxInterval < opts.Retry.InitialInterval {
		opts.Retry.MaxInterval = opts.Retry.InitialInterval
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &GuardedClient{
		remote:  remote,
		breaker: b,
		ledger:  ledger,
		retry:   opts.Retry,
		obs:     opts.Observer,
		log:     opts.Logger.With(zap.String("breaker", b.Name())),
		now:     opts.Now,
	}, nil
}

// Collect charges one order. It never returns an error: every failure of the
// payment subsystem becomes an Outcome with StatusFailed.
func (g *GuardedClient) Collect(ctx context.Context, req participant.PaymentRequest) Outcome {
	done, err := g.breaker.Allow()
	if err != nil {
		g.obs.ShortCircuited()
		out := g.fallback(ctx, req, ReasonCircuitOpen, err)
		out.ShortCircuited = true
		return out
	}

	attempts := 0
	receipt, err := backoff.RetryNotifyWithData(
		func() (participant.PaymentReceipt, error) {
			attempts++
			r, err := g.remote.SubmitPayment(ctx, req)
			if err != nil && participant.Classify(err) != participant.KindUnavailable {
				return r, backoff.Permanent(err)
			}
			return r, err
		},
		g.backOff(ctx),
		func(err error, wait time.Duration) {
			g.obs.Retried()
			g.log.Warn("payment attempt failed, retrying",
				zap.Int64("order_id", req.OrderID),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	)

	kind := participant.Classify(err)
	switch kind {
	case participant.KindNone:
		done(true)
	case participant.KindRejected, participant.KindNotFound:
		// the remote is healthy, it just said no
		done(true)
	case participant.KindUnavailable, participant.KindUnexpected:
		done(false)
	}

	var out Outcome
	switch kind {
	case participant.KindNone:
		out = g.settle(req, receipt)
	case participant.KindUnavailable:
		out = g.fallback(ctx, req, ReasonRetriesExhausted, err)
	case participant.KindUnexpected:
		out = g.fallback(ctx, req, ReasonUnexpected, err)
	case participant.KindRejected, participant.KindNotFound:
		out = g.fallback(ctx, req, ReasonRejected, err)
	}
	out.Attempts = attempts
	return out
}

func (g *GuardedClient) settle(req participant.PaymentRequest, r participant.PaymentReceipt) Outcome {
	out := Outcome{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Status:      StatusSuccess,
		PaymentDate: r.PaymentDate,
	}
	if out.PaymentDate.IsZero() {
		out.PaymentDate = g.now().UTC()
	}
	if !strings.EqualFold(r.Status, string(StatusSuccess)) {
		// a declined charge was already recorded by the payment service
		out.Status = StatusFailed
		out.Reason = ReasonDeclined
		g.log.Info("payment declined",
			zap.Int64("order_id", req.OrderID),
			zap.String("remote_status", r.Status))
	}
	return out
}

func (g *GuardedClient) fallback(ctx context.Context, req participant.PaymentRequest, reason string, cause error) Outcome {
	g.obs.Fallback(reason)
	out := Outcome{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Status:      StatusFailed,
		PaymentDate: g.now().UTC(),
		Reason:      reason,
	}
	g.log.Warn("payment fallback",
		zap.Int64("order_id", req.OrderID),
		zap.String("reason", reason),
		zap.Error(cause))

	_, err := g.ledger.RecordFailure(ctx, Record{
		OrderID:     out.OrderID,
		UserID:      out.UserID,
		Amount:      out.Amount,
		Status:      StatusFailed,
		Reason:      reason,
		PaymentDate: out.PaymentDate,
	})
	if err != nil {
		g.log.Error("record failed payment", zap.Int64("order_id", req.OrderID), zap.Error(err))
	}
	return out
}

func (g *GuardedClient) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.retry.InitialInterval
	eb.MaxInterval = g.retry.MaxInterval
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.retry.MaxRetries)), ctx)
}
