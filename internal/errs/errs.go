// Package errs defines the closed set of error kinds produced by the
// ingestion core, following the sentinel-error-plus-constructor shape
// used throughout the pump.fun SDK ecosystem (ErrNilRPC,
// NewValidationError) generalized into a single typed Kind.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which of the core's closed error categories an Error
// belongs to. Callers branch on Kind, never on message text.
type Kind int

const (
	// KindUnknown is the zero value; never constructed intentionally.
	KindUnknown Kind = iota
	// KindTransportAuth is a fatal gRPC authentication failure.
	KindTransportAuth
	// KindTransportTransient is a retryable transport error.
	KindTransportTransient
	// KindDecodeShort means a payload was shorter than the minimum for
	// its discriminator.
	KindDecodeShort
	// KindDecodeDiscriminatorUnknown means the 8-byte discriminator did
	// not match any known account or event layout.
	KindDecodeDiscriminatorUnknown
	// KindArithmeticPrecision marks a price/market-cap computation that
	// could not be performed without losing or dividing by zero.
	KindArithmeticPrecision
	// KindStaleSolQuote means the SOL/USD quote exceeded its staleness
	// ceiling.
	KindStaleSolQuote
	// KindStorageTransient is a retryable storage error.
	KindStorageTransient
	// KindStoragePermanent is a non-retryable storage error.
	KindStoragePermanent
	// KindConfigInvalid is a fatal configuration error.
	KindConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransportAuth:
		return "transport_auth"
	case KindTransportTransient:
		return "transport_transient"
	case KindDecodeShort:
		return "decode_short"
	case KindDecodeDiscriminatorUnknown:
		return "decode_discriminator_unknown"
	case KindArithmeticPrecision:
		return "arithmetic_precision"
	case KindStaleSolQuote:
		return "stale_sol_quote"
	case KindStorageTransient:
		return "storage_transient"
	case KindStoragePermanent:
		return "storage_permanent"
	case KindConfigInvalid:
		return "config_invalid"
	default:
		return "unknown"
	}
}

// Error is the core's typed error value. Message carries human context;
// Cause carries the wrapped underlying error, if any.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps cause. If cause is nil, Wrap returns a
// nil *Error. A nil *Error held in an error interface compares non-nil,
// so `return errs.Wrap(KindStorageTransient, "flush", err)` from a
// function whose result type is error is only nil-safe when err has
// already been checked.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel validation-style constructors mirroring the pump-go-sdk
// ErrNilRPC / NewValidationError shape, specialized to this core's
// recurring nil/zero-value checks.

// ErrNilQuote is returned when a price calculation is attempted with no
// SOL/USD quote available at all (distinct from a stale one).
var ErrNilQuote = New(KindArithmeticPrecision, "no SOL/USD quote available")

// NewValidationError reports a precondition failure on a named field.
func NewValidationError(field, reason string) *Error {
	return New(KindConfigInvalid, fmt.Sprintf("%s: %s", field, reason))
}

// NewDecodeShort reports a payload shorter than the minimum required for
// the named layout.
func NewDecodeShort(layout string, got, want int) *Error {
	return New(KindDecodeShort, fmt.Sprintf("%s: payload too short: got %d bytes, want at least %d", layout, got, want))
}

// NewUnknownDiscriminator reports an 8-byte discriminator that matched no
// known layout.
func NewUnknownDiscriminator(disc [8]byte) *Error {
	return New(KindDecodeDiscriminatorUnknown, fmt.Sprintf("unrecognized discriminator % x", disc))
}

// NewStaleQuote reports a SOL/USD quote whose age exceeded cap.
func NewStaleQuote(age, cap time.Duration) *Error {
	return New(KindStaleSolQuote, fmt.Sprintf("quote age %s exceeds staleness cap %s", age, cap))
}
