package participant

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentRequest struct {
	OrderID int64           `json:"orderId"`
	UserID  int64           `json:"userId"`
	Amount  decimal.Decimal `json:"amount"`
}

type PaymentReceipt struct {
	ID          int64     `json:"id"`
	Status      string    `json:"status"`
	PaymentDate time.Time `json:"paymentDate"`
}

// PaymentClient talks to the remote payment service. It performs a single
// attempt; retries and circuit breaking live in package payment.
type PaymentClient struct{ c client }

func NewPaymentClient(opts Options) (*PaymentClient, error) {
	c, err := newClient("payment-service", opts)
	if err != nil {
		return nil, err
	}
	return &PaymentClient{c: c}, nil
}

func (p *PaymentClient) SubmitPayment(ctx context.Context, req PaymentRequest) (PaymentReceipt, error) {
	var out PaymentReceipt
	if err := p.c.do(ctx, http.MethodPost, "/api/payments/process", req, &out); err != nil {
		return PaymentReceipt{}, err
	}
	return out, nil
}
