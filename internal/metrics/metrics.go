package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/go-order-saga/internal/breaker"
)

type Registry struct {
	reg *prometheus.Registry

	Placements        *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	NotificationsSkip *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	ShortCircuits     prometheus.Counter
	PaymentRetries    prometheus.Counter
	PaymentFallbacks  *prometheus.CounterVec
	ProjectedEvents   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	placements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_placements_total",
		Help: "Order placements by final outcome.",
	}, []string{"outcome"})
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_step_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notifications_skipped_total"}, []string{"reason"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payment_breaker_state",
		Help: "0 closed, 1 open, 2 half-open.",
	}, []string{"breaker"})
	shorted := prometheus.NewCounter(prometheus.CounterOpts{Name: "payment_short_circuits_total"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{Name: "payment_retries_total"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payment_fallbacks_total"}, []string{"reason"})
	projected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "projector_events_total"}, []string{"result"})

	r.MustRegister(
		placements, stepDuration, skipped, breakerState, shorted, retries, fallbacks, projected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		reg:               r,
		Placements:        placements,
		StepDuration:      stepDuration,
		NotificationsSkip: skipped,
		BreakerState:      breakerState,
		ShortCircuits:     shorted,
		PaymentRetries:    retries,
		PaymentFallbacks:  fallbacks,
		ProjectedEvents:   projected,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// saga hooks

func (r *Registry) Placement(outcome string) { r.Placements.WithLabelValues(outcome).Inc() }

func (r *Registry) ObserveStep(step string, d time.Duration) {
	r.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (r *Registry) NotificationSkipped(reason string) {
	r.NotificationsSkip.WithLabelValues(reason).Inc()
}

// payment hooks

func (r *Registry) Retried()               { r.PaymentRetries.Inc() }
func (r *Registry) ShortCircuited()        { r.ShortCircuits.Inc() }
func (r *Registry) Fallback(reason string) { r.PaymentFallbacks.WithLabelValues(reason).Inc() }

func (r *Registry) OnBreakerStateChange(name string, _, to breaker.State) {
	r.BreakerState.WithLabelValues(name).Set(float64(to))
}

// projector hooks

func (r *Registry) Projected(result string) { r.ProjectedEvents.WithLabelValues(result).Inc() }
