// Package errkind enumerates the caller-visible error kinds the engine
// surfaces, per the RPC error contract. Validation and balance errors
// map to a Rejected response; invariant violations map to a fatal
// MarketHalted condition.
package errkind

import "github.com/pkg/errors"

type Kind string

const (
	InvalidRequest        Kind = "InvalidRequest"
	UnknownMarket         Kind = "UnknownMarket"
	MarketInactive        Kind = "MarketInactive"
	UnknownOrder          Kind = "UnknownOrder"
	NotOwner              Kind = "NotOwner"
	OrderTerminal         Kind = "OrderTerminal"
	InsufficientAvailable Kind = "InsufficientAvailable"
	InsufficientLocked    Kind = "InsufficientLocked"
	TickMisaligned        Kind = "TickMisaligned"
	BelowMinOrderSize     Kind = "BelowMinOrderSize"
	DuplicateRequest      Kind = "DuplicateRequest"
	UnknownRequest        Kind = "UnknownRequest"
	EngineTimeout         Kind = "EngineTimeout"
	MarketHalted          Kind = "MarketHalted"
)

// Error pairs a Kind with a human-readable message and an optional
// cause, so a fatal halt keeps its root cause for operator diagnosis.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Of extracts the Kind from any error, defaulting to InvalidRequest
// for errors that did not originate from this package.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InvalidRequest
}
