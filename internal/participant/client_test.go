package participant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) Options {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return Options{BaseURL: srv.URL, Timeout: time.Second}
}

func TestNewClient_RequiresTimeout(t *testing.T) {
	_, err := NewProductClient(Options{BaseURL: "http://x"})
	assert.Error(t, err)
	_, err = NewUserClient(Options{Timeout: time.Second})
	assert.Error(t, err)
}

func TestProductClient_FetchProduct(t *testing.T) {
	opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/code/P001", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":1,"productCode":"P001","name":"Keyboard","price":100.0}`))
	})
	pc, err := NewProductClient(opts)
	require.NoError(t, err)

	p, err := pc.FetchProduct(context.Background(), "P001")
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", p.Name)
	assert.True(t, p.UnitPrice.Equal(decimal.NewFromInt(100)))
}

func TestProductClient_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want Kind
	}{
		{"404", http.StatusNotFound, `{"error":"nope"}`, KindNotFound},
		{"null body", http.StatusOK, `null`, KindNotFound},
		{"empty body", http.StatusOK, ``, KindNotFound},
		{"503", http.StatusServiceUnavailable, ``, KindUnavailable},
		{"429", http.StatusTooManyRequests, ``, KindUnavailable},
		{"400", http.StatusBadRequest, `{"error":"bad"}`, KindRejected},
		{"garbage", http.StatusOK, `{"name":`, KindUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			})
			pc, err := NewProductClient(opts)
			require.NoError(t, err)

			_, err = pc.FetchProduct(context.Background(), "P001")
			assert.Equal(t, tc.want, Classify(err), "err=%v", err)
		})
	}
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ic, err := NewInventoryClient(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, err = ic.IsInStock(context.Background(), "P001")
	assert.Equal(t, KindUnavailable, Classify(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	uc, err := NewUserClient(Options{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = uc.FetchUser(context.Background(), 1)
	assert.Equal(t, KindUnavailable, Classify(err))
}

func TestInventoryClient_IsInStock(t *testing.T) {
	for _, body := range []string{"true", "false"} {
		opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/inventory/isInStock/P001", r.URL.Path)
			_, _ = w.Write([]byte(body))
		})
		ic, err := NewInventoryClient(opts)
		require.NoError(t, err)

		ok, err := ic.IsInStock(context.Background(), "P001")
		require.NoError(t, err)
		assert.Equal(t, body == "true", ok)
	}
}

func TestPaymentClient_SubmitPayment(t *testing.T) {
	opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payments/process", r.URL.Path)
		var req PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(10), req.OrderID)
		assert.True(t, req.Amount.Equal(decimal.RequireFromString("200")))
		_, _ = w.Write([]byte(`{"id":5,"status":"SUCCESS","paymentDate":"2026-10-19T10:00:00Z"}`))
	})
	pc, err := NewPaymentClient(opts)
	require.NoError(t, err)

	rcpt, err := pc.SubmitPayment(context.Background(), PaymentRequest{OrderID: 10, UserID: 1, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", rcpt.Status)
	assert.Equal(t, int64(5), rcpt.ID)
}

func TestUserClient_FetchUser(t *testing.T) {
	opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"email":"a@example.com"}`))
	})
	uc, err := NewUserClient(opts)
	require.NoError(t, err)

	u, err := uc.FetchUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	_, err = uc.FetchUser(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationClient_Send(t *testing.T) {
	opts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		if n.UserEmail == "fail@example.com" {
			http.Error(w, "smtp down", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("Notification sent to " + n.UserEmail + "\n"))
	})
	nc, err := NewNotificationClient(opts)
	require.NoError(t, err)

	ack, err := nc.Send(context.Background(), Notification{OrderID: 1, UserID: 1, UserEmail: "a@example.com", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Notification sent to a@example.com", ack)

	_, err = nc.Send(context.Background(), Notification{UserEmail: "fail@example.com"})
	assert.Equal(t, KindUnavailable, Classify(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindUnexpected, Classify(context.Canceled))
	assert.Equal(t, "rejected", KindRejected.String())
}
