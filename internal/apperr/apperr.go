// Package apperr holds the error kinds shared by the order and risk engine.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidState       Kind = "invalid_state"
	KindInsufficientMargin Kind = "insufficient_margin"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindPricingUnavailable Kind = "pricing_unavailable"
	KindExternalBridge     Kind = "external_bridge"
	KindConsistency        Kind = "consistency"
	KindNotFound           Kind = "not_found"
)

var (
	ErrValidation         = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrInvalidState       = &Error{Kind: KindInvalidState, Msg: "invalid order state"}
	ErrInsufficientMargin = &Error{Kind: KindInsufficientMargin, Msg: "insufficient free margin"}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds, Msg: "insufficient funds"}
	ErrPricingUnavailable = &Error{Kind: KindPricingUnavailable, Msg: "pricing unavailable"}
	ErrExternalBridge     = &Error{Kind: KindExternalBridge, Msg: "external bridge failure"}
	ErrConsistency        = &Error{Kind: KindConsistency, Msg: "consistency violation"}
	ErrNotFound           = &Error{Kind: KindNotFound, Msg: "not found"}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidation) works
// for every validation error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newf(KindValidation, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newf(KindInvalidState, format, args...)
}

func InsufficientMargin(format string, args ...any) error {
	return newf(KindInsufficientMargin, format, args...)
}

func InsufficientFunds(format string, args ...any) error {
	return newf(KindInsufficientFunds, format, args...)
}

func PricingUnavailable(format string, args ...any) error {
	return newf(KindPricingUnavailable, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

func Consistency(format string, args ...any) error {
	return newf(KindConsistency, format, args...)
}

// ExternalBridge wraps the last transport error seen by the bridge adapter.
func ExternalBridge(err error, format string, args ...any) error {
	e := newf(KindExternalBridge, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
