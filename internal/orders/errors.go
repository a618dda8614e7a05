package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid order request")
	ErrProductNotFound     = errors.New("product not found")
	ErrOutOfStock          = errors.New("product out of stock")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// PlacementError records which saga step stopped a placement. errors.Is
// matches the wrapped category.
type PlacementError struct {
	Step        string
	ProductCode string
	Err         error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place order %s: %s: %v", e.ProductCode, e.Step, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }
