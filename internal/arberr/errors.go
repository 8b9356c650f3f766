// Package arberr classifies errors into a taxonomy so every stage of the
// pipeline can apply the same propagation policy:
// retry transient errors locally, let the rate limiter absorb 429/418,
// surface auth/config and invariant errors to the operator (and trip
// emergency-stop in Live mode), and turn business rejections into a
// Missed signal outcome.
package arberr

import (
	"errors"
	"strings"
)

// Category is one bucket of the error taxonomy.
type Category string

const (
	Transient  Category = "transient_network"
	RateLimit  Category = "rate_limit"
	Auth       Category = "auth_config"
	Protocol   Category = "protocol"
	Business   Category = "business"
	Invariant  Category = "invariant_violation"
	Unknown    Category = "other"
)

// Error wraps an underlying error with its taxonomy category and an
// optional correlation id (signal_id or order_id) for log correlation.
type Error struct {
	Category      Category
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return string(e.Category) + " [" + e.CorrelationID + "]: " + e.Err.Error()
	}
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches a category and correlation id to err. A nil err returns nil.
func Wrap(category Category, correlationID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, CorrelationID: correlationID, Err: err}
}

// CategoryOf returns the category attached by Wrap, or Unknown if err was
// never classified.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return Unknown
}

// Classify infers a category from an error's text when the caller hasn't
// already wrapped it, for third-party errors (exchange SDKs, pgx, etc.)
// that arrive unclassified.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}
	if c := CategoryOf(err); c != Unknown {
		return c
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429") || strings.Contains(s, "418") || strings.Contains(s, "rate limit") || strings.Contains(s, "too many requests"):
		return RateLimit
	case strings.Contains(s, "401") || strings.Contains(s, "403") || strings.Contains(s, "signature") || strings.Contains(s, "unauthorized") || strings.Contains(s, "unknown symbol"):
		return Auth
	case strings.Contains(s, "sequence") || strings.Contains(s, "malformed") || strings.Contains(s, "decode"):
		return Protocol
	case strings.Contains(s, "insufficient") || strings.Contains(s, "halted") || strings.Contains(s, "out of tolerance") || strings.Contains(s, "rejected"):
		return Business
	case strings.Contains(s, "negative balance") || strings.Contains(s, "bid >= ask") || strings.Contains(s, "bid>=ask"):
		return Invariant
	case strings.Contains(s, "timeout") || strings.Contains(s, "connection") || strings.Contains(s, "eof") || strings.Contains(s, "reset") || strings.Contains(s, "5"+"0"+"2") || strings.Contains(s, "503"):
		return Transient
	default:
		return Unknown
	}
}

// Retryable reports whether the category's default propagation policy
// calls for a local retry (transient and rate-limit categories).
func Retryable(c Category) bool {
	return c == Transient || c == RateLimit
}

// Fatal reports whether the category should propagate to the operator and,
// in Live mode, trigger emergency-stop.
func Fatal(c Category) bool {
	return c == Auth || c == Invariant
}
