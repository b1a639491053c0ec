// Package apperr is the error taxonomy shared by the store, the payment
// gateway adapter and the contribution service. Controllers map a Kind to an
// HTTP status; everything else just wraps and returns.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindInvalidSignature
	KindInconsistent
	KindGateway
	KindStoreUnavailable
	KindStore
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindInconsistent:
		return "inconsistent"
	case KindGateway:
		return "gateway"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindStore:
		return "store"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Downstream reports whether the failure came from the store or the gateway.
// Those are retryable by the caller and must not leak details.
func (k Kind) Downstream() bool {
	return k == KindGateway || k == KindStoreUnavailable || k == KindStore
}

type Error struct {
	Kind    Kind
	Message string
	// State is the current lifecycle status for KindInvalidState.
	State string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Cause() error { return e.Err }

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func InvalidState(message, current string) error {
	return &Error{Kind: KindInvalidState, Message: message, State: current}
}

func InvalidSignature() error {
	return &Error{Kind: KindInvalidSignature, Message: "invalid signature"}
}

func Inconsistent(format string, args ...interface{}) error {
	return &Error{Kind: KindInconsistent, Message: fmt.Sprintf(format, args...)}
}

func Gateway(err error, message string) error {
	return &Error{Kind: KindGateway, Message: message, Err: err}
}

func StoreUnavailable(err error, message string) error {
	return &Error{Kind: KindStoreUnavailable, Message: message, Err: err}
}

func Store(err error, message string) error {
	return &Error{Kind: KindStore, Message: message, Err: err}
}

func RateLimited() error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded, try again later"}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
