package orders

type Status string

const (
	StatusPlaced          Status = "PLACED"
	StatusOutOfStock      Status = "OUT_OF_STOCK"
	StatusProductNotFound Status = "PRODUCT_NOT_FOUND"
	StatusPaymentFailed   Status = "PAYMENT_FAILED"
	StatusUserNotFound    Status = "USER_NOT_FOUND"
)

// Only PLACED rows are ever written; the one correction allowed afterwards is
// PLACED -> PAYMENT_FAILED when payment could not be collected.
var validNext = map[Status]map[Status]bool{
	StatusPlaced:          {StatusPaymentFailed: true},
	StatusPaymentFailed:   {},
	StatusOutOfStock:      {},
	StatusProductNotFound: {},
	StatusUserNotFound:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}
