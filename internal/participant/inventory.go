package participant

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type InventoryClient struct{ c client }

func NewInventoryClient(opts Options) (*InventoryClient, error) {
	c, err := newClient("inventory-service", opts)
	if err != nil {
		return nil, err
	}
	return &InventoryClient{c: c}, nil
}

// IsInStock reports the remote stock flag. false is a successful answer,
// distinct from any error.
func (i *InventoryClient) IsInStock(ctx context.Context, code string) (bool, error) {
	var out *bool
	if err := i.c.do(ctx, http.MethodGet, "/api/inventory/isInStock/"+url.PathEscape(code), nil, &out); err != nil {
		return false, err
	}
	if out == nil {
		return false, fmt.Errorf("inventory-service: %w: null stock flag for %s", ErrUnexpected, code)
	}
	return *out, nil
}
