package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/ariefcatur/go-order-saga/internal/payment"
	"github.com/ariefcatur/go-order-saga/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Placer interface {
	PlaceOrder(ctx context.Context, req orders.PlacementRequest) (orders.Order, error)
}

type OrderReader interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
	List(ctx context.Context) ([]orders.Order, error)
}

type PaymentReader interface {
	ListByOrder(ctx context.Context, orderID int64) ([]payment.Record, error)
}

type IdempotencyGuard interface {
	Reserve(ctx context.Context, key, fingerprint string) (redisx.ReserveResult, int64, error)
	Complete(ctx context.Context, key, fingerprint string, orderID int64) error
	Release(ctx context.Context, key string) error
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.CachedStatus, bool, error)
	Set(ctx context.Context, orderID int64, st redisx.CachedStatus) error
}

// OrdersHandler serves the order API. Idem and Cache are optional.
// PlaceTimeout bounds a placement up to the point its order is persisted;
// the saga finishes the rest regardless.
type OrdersHandler struct {
	Saga         Placer
	PlaceTimeout time.Duration
	Orders       OrderReader
	Payments     PaymentReader
	Idem         IdempotencyGuard
	Cache        StatusCache
	Log          *zap.Logger
}

type OrderResp struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	ProductCode string          `json:"productCode"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	Status      orders.Status   `json:"status"`
	OrderDate   time.Time       `json:"orderDate"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Idempotent  bool            `json:"idempotent,omitempty"`
}

func toOrderResp(o orders.Order) OrderResp {
	return OrderResp{
		ID:          o.ID,
		UserID:      o.UserID,
		ProductCode: o.ProductCode,
		Quantity:    o.Quantity,
		Amount:      o.Amount,
		Status:      o.Status,
		OrderDate:   o.OrderDate,
		UpdatedAt:   o.UpdatedAt,
	}
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
		r.Get("/{id}/payments", h.listPayments)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrProductNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, orders.ErrUpstreamUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.PlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if h.PlaceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.PlaceTimeout)
		defer cancel()
	}
	log := h.Log.With(zap.String("product_code", req.ProductCode), zap.Int64("user_id", req.UserID))

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	fp := req.Fingerprint()
	reserved := false
	if key != "" && h.Idem != nil {
		res, orderID, err := h.Idem.Reserve(ctx, key, fp)
		switch {
		case err != nil:
			// Redis cuma fast-path; lanjut tanpa idempotency
			log.Warn("idempotency reserve failed", zap.Error(err))
		case res == redisx.Mismatch:
			writeError(w, http.StatusUnprocessableEntity, "idempotency key was already used for a different request")
			return
		case res == redisx.InFlight:
			writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
			return
		case res == redisx.Replayed:
			o, err := h.Orders.Get(ctx, orderID)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			resp := toOrderResp(o)
			resp.Idempotent = true
			writeJSON(w, http.StatusOK, resp)
			return
		default:
			reserved = true
		}
	}

	order, err := h.Saga.PlaceOrder(ctx, req)
	// the saga may outlive the request; bookkeeping must not depend on it
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if reserved {
			if rerr := h.Idem.Release(bg, key); rerr != nil {
				log.Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			log.Error("place order", zap.Error(err))
		}
		writeError(w, code, err.Error())
		return
	}

	if reserved {
		if err := h.Idem.Complete(bg, key, fp, order.ID); err != nil {
			log.Warn("idempotency complete failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	h.cacheStatus(bg, order)
	writeJSON(w, http.StatusCreated, toOrderResp(order))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.List(ctx)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		if st, hit, err := h.Cache.Get(ctx, id); err == nil && hit {
			writeJSON(w, http.StatusOK, st)
			return
		} else if err != nil {
			h.Log.Warn("status cache read", zap.Int64("order_id", id), zap.Error(err))
		}
	}

	// 2) fallback store
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.Orders.Get(ctx, id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	recs, err := h.Payments.ListByOrder(ctx, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if recs == nil {
		recs = []payment.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Set(ctx, o.ID, redisx.CachedStatus{Status: string(o.Status), UpdatedAt: o.UpdatedAt}); err != nil {
		h.Log.Warn("status cache write", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}
