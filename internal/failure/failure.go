// Package failure defines the typed failures produced while fetching, scoring
// and allocating. Symbol-level failures drop one symbol from a run; allocation
// failures are terminal for the call.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	InvalidSymbol       Kind = "invalid_symbol"
	Illiquid            Kind = "illiquid"
	DataUnavailable     Kind = "data_unavailable"
	InvalidPrice        Kind = "invalid_price"
	InvalidYield        Kind = "invalid_yield"
	InsufficientHistory Kind = "insufficient_history"
	RetryExhausted      Kind = "retry_exhausted"
	Timeout             Kind = "timeout"
	InsufficientCapital Kind = "insufficient_capital"
	NoEligibleAssets    Kind = "no_eligible_assets"

	// Cancelled marks symbols never dispatched because the run was cancelled.
	Cancelled Kind = "cancelled"
)

// Sentinels for errors.Is matching by kind
var (
	ErrInvalidSymbol       = &Error{Kind: InvalidSymbol}
	ErrIlliquid            = &Error{Kind: Illiquid}
	ErrDataUnavailable     = &Error{Kind: DataUnavailable}
	ErrInvalidPrice        = &Error{Kind: InvalidPrice}
	ErrInvalidYield        = &Error{Kind: InvalidYield}
	ErrInsufficientHistory = &Error{Kind: InsufficientHistory}
	ErrRetryExhausted      = &Error{Kind: RetryExhausted}
	ErrTimeout             = &Error{Kind: Timeout}
	ErrInsufficientCapital = &Error{Kind: InsufficientCapital}
	ErrNoEligibleAssets    = &Error{Kind: NoEligibleAssets}
	ErrCancelled           = &Error{Kind: Cancelled}
)

// Error is a classified failure, optionally tied to a symbol
type Error struct {
	Kind    Kind
	Symbol  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Symbol != "" {
		msg = fmt.Sprintf("%s: %s", e.Symbol, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of symbol or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a failure for a symbol
func New(kind Kind, symbol, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Symbol:  symbol,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a failure for a symbol carrying an underlying cause
func Wrap(kind Kind, symbol string, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Symbol:  symbol,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsSymbolLocal reports whether err only removes one symbol from a run.
func IsSymbolLocal(err error) bool {
	switch KindOf(err) {
	case InsufficientCapital, NoEligibleAssets, "":
		return false
	default:
		return true
	}
}
