package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// validate is shared by every caller of PlacementRequest.Validate; the
// struct tags are the only place the rules live.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// PlacementRequest is the transient input of one order placement.
type PlacementRequest struct {
	UserID      int64  `json:"userId" validate:"required,gt=0"`
	ProductCode string `json:"productCode" validate:"required,notblank"`
	Quantity    int    `json:"quantity" validate:"gte=1"`
}

// Validate checks the struct tags and wraps any violation in ErrInvalidRequest.
func (r PlacementRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, ", "))
}

// Fingerprint identifies the request body, so a reused idempotency key can be
// told apart from a genuine retry.
func (r PlacementRequest) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%d", r.UserID, strings.TrimSpace(r.ProductCode), r.Quantity)))
	return hex.EncodeToString(sum[:])
}

type Order struct {
	ID          int64
	UserID      int64
	ProductCode string
	Quantity    int
	Amount      decimal.Decimal
	Status      Status
	OrderDate   time.Time
	UpdatedAt   time.Time
}
