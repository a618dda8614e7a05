package orders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPlaced, StatusPaymentFailed))
	assert.False(t, CanTransition(StatusPaymentFailed, StatusPlaced))
	assert.False(t, CanTransition(StatusPlaced, StatusOutOfStock))
	assert.False(t, CanTransition(Status("SHIPPED"), StatusPlaced))
}

func TestPlacementRequest_Validate(t *testing.T) {
	ok := PlacementRequest{UserID: 1, ProductCode: "P001", Quantity: 2}
	assert.NoError(t, ok.Validate())

	for _, bad := range []PlacementRequest{
		{UserID: 0, ProductCode: "P001", Quantity: 1},
		{UserID: 1, ProductCode: "  ", Quantity: 1},
		{UserID: 1, ProductCode: "P001", Quantity: 0},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest, "%+v", bad)
	}
}

func TestPlacementError_Unwrap(t *testing.T) {
	err := error(&PlacementError{Step: "check_stock", ProductCode: "P001", Err: ErrOutOfStock})
	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.Contains(t, err.Error(), "check_stock")
}

func TestPlacementRequest_ValidateReportsTagFailures(t *testing.T) {
	err := PlacementRequest{UserID: 1, ProductCode: "\t", Quantity: 0}.Validate()

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "ProductCode failed notblank")
	assert.Contains(t, err.Error(), "Quantity failed gte")
}

func TestPlacementRequest_Fingerprint(t *testing.T) {
	a := PlacementRequest{UserID: 1, ProductCode: "P001", Quantity: 2}
	b := PlacementRequest{UserID: 1, ProductCode: " P001 ", Quantity: 2}
	c := PlacementRequest{UserID: 1, ProductCode: "P001", Quantity: 5}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
