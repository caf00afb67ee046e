package lending

import (
	"errors"

	nativecommon "lendledger/native/common"
)

// Error kinds surfaced to callers. Actions wrap these with detail so that
// errors.Is identifies the kind and the message stays readable.
var (
	ErrInvalidAmount       = errors.New("lending: invalid amount")
	ErrNotFound            = errors.New("lending: not found")
	ErrInvalidState        = errors.New("lending: invalid state")
	ErrInsufficientPayment = errors.New("lending: insufficient payment")
	ErrUnauthorized        = errors.New("lending: unauthorized")
	ErrOverflow            = errors.New("lending: arithmetic overflow")
)

var errNilState = errors.New("lending engine: state not configured")

// Kind names returned by Kind.
const (
	KindInvalidAmount       = "invalid_amount"
	KindNotFound            = "not_found"
	KindInvalidState        = "invalid_state"
	KindInsufficientPayment = "insufficient_payment"
	KindUnauthorized        = "unauthorized"
	KindOverflow            = "overflow"
	KindPaused              = "paused"
	KindInternal            = "internal"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInsufficientPayment):
		return KindInsufficientPayment
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrOverflow):
		return KindOverflow
	case errors.Is(err, nativecommon.ErrModulePaused):
		return KindPaused
	default:
		return KindInternal
	}
}
