package participant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

type Product struct {
	ProductCode string          `json:"productCode"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"price"`
}

type ProductClient struct{ c client }

func NewProductClient(opts Options) (*ProductClient, error) {
	c, err := newClient("product-service", opts)
	if err != nil {
		return nil, err
	}
	return &ProductClient{c: c}, nil
}

// FetchProduct looks a product up by its code.
func (p *ProductClient) FetchProduct(ctx context.Context, code string) (Product, error) {
	var out *Product
	if err := p.c.do(ctx, http.MethodGet, "/api/products/code/"+url.PathEscape(code), nil, &out); err != nil {
		return Product{}, err
	}
	if out == nil {
		return Product{}, fmt.Errorf("product-service: %w: code=%s", ErrNotFound, code)
	}
	return *out, nil
}
