package participant

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrUnexpected  = errors.New("unexpected response")
	// ErrRejected is a definitive answer from a healthy remote (4xx other
	// than 404/408/429); retrying it cannot succeed.
	ErrRejected = errors.New("rejected")
)

type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindUnavailable
	KindUnexpected
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	default:
		return "unexpected"
	}
}

// Classify maps a client error onto its Kind. Errors that did not come from
// a participant client are Unexpected.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrRejected):
		return KindRejected
	default:
		return KindUnexpected
	}
}
