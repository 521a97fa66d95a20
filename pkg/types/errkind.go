package types

import "errors"

// ErrorKind enumerates the error taxonomy the engine surfaces to callers and
// onto the event bus. Risk-gate rejections are carried as reasons, not
// errors — ErrorKind covers only things that are genuinely exceptional.
type ErrorKind string

const (
	ErrConfigInvalid         ErrorKind = "ConfigInvalid"
	ErrDiscoveryUnavailable  ErrorKind = "DiscoveryUnavailable"
	ErrFeedTransport         ErrorKind = "FeedTransport"
	ErrFeedProtocol          ErrorKind = "FeedProtocol"
	ErrBookStale             ErrorKind = "BookStale"
	ErrBankrollExhausted     ErrorKind = "BankrollExhausted"
	ErrInFlight              ErrorKind = "InFlight"
	ErrBelowMinimum          ErrorKind = "BelowMinimum"
	ErrSubmitTimeout         ErrorKind = "SubmitTimeout"
	ErrSubmitRejected        ErrorKind = "SubmitRejected"
	ErrPartialFillUnresolved ErrorKind = "PartialFillUnresolved"
	ErrIdempotencyViolation  ErrorKind = "IdempotencyViolation"
	ErrClockSkew             ErrorKind = "ClockSkew"
)

// KindError wraps an ErrorKind with a human-readable cause, so callers can
// both log a message and switch on the taxonomy.
type KindError struct {
	Kind  ErrorKind
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *KindError) Unwrap() error { return e.Cause }

// NewKindError constructs a KindError, the idiomatic way engine code should
// surface an exceptional condition.
func NewKindError(kind ErrorKind, cause error) *KindError {
	return &KindError{Kind: kind, Cause: cause}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// ErrDuplicateToken is returned by the Market Registry when a token already
// belongs to a different live market.
var ErrDuplicateToken = errors.New("token already belongs to a different live market")
