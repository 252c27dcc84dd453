package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrTierNotFound     = errors.New("tier not found")

	// ErrNoProvidersAvailable means the tier had no enabled candidate with
	// rate budget left. A configuration or capacity problem, not a request
	// problem.
	ErrNoProvidersAvailable = errors.New("no providers available")
)

// TransportCategory classifies adapter failures.
type TransportCategory string

const (
	TransportTimeout     TransportCategory = "timeout"
	TransportNetwork     TransportCategory = "network"
	TransportRateLimited TransportCategory = "rate-limited"
	TransportAuthFailed  TransportCategory = "auth-failed"
	TransportServerError TransportCategory = "server-error"
)

// TransportError is the only error shape an adapter lets escape. Every raw
// network or HTTP failure is normalized into one before the dispatcher sees
// it.
type TransportError struct {
	OriginalErr error             `json:"-"`
	ProviderID  string            `json:"provider_id"`
	Category    TransportCategory `json:"category"`
	StatusCode  int               `json:"status_code,omitempty"`
	Message     string            `json:"message"`
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.OriginalErr != nil {
		msg = e.OriginalErr.Error()
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%d %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.ProviderID, e.Category, msg)
}

func (e *TransportError) Unwrap() error {
	return e.OriginalErr
}

// DisablesProvider reports whether the provider should be taken out of
// rotation for the rest of the process run.
func (e *TransportError) DisablesProvider() bool {
	return e.Category == TransportAuthFailed
}

func categoryForStatus(code int) TransportCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return TransportRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return TransportAuthFailed
	default:
		return TransportServerError
	}
}

// ParseReason classifies normalizer failures.
type ParseReason string

const (
	ParseEmpty     ParseReason = "empty"
	ParseMalformed ParseReason = "malformed"
	// ParseFiltered means the provider blocked the content itself. Switching
	// providers usually will not help, so the dispatcher treats it as
	// terminal unless the tier opts in to filtered failover.
	ParseFiltered ParseReason = "filtered"
)

type ParseError struct {
	ProviderID string
	Reason     ParseReason
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s response: %s", e.ProviderID, e.Reason, e.Message)
}

// Retryable reports whether the failure is recoverable by failing over to
// the next candidate.
func (e *ParseError) Retryable() bool {
	return e.Reason != ParseFiltered
}

// DeadlineExceededMarker is appended to the attempt trail when the overall
// dispatch deadline cuts off the remaining candidates.
const DeadlineExceededMarker = "deadline-exceeded"

// AttemptFailure is one entry in the diagnostic trail of a failed dispatch.
type AttemptFailure struct {
	ProviderID string
	Category   string
}

// AllProvidersFailedError carries the ordered per-provider failure trail of
// an exhausted dispatch call.
type AllProvidersFailedError struct {
	Attempts         []AttemptFailure
	DeadlineExceeded bool
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts)+1)
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%s", attempt.ProviderID, attempt.Category))
	}
	if e.DeadlineExceeded {
		parts = append(parts, DeadlineExceededMarker)
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}

func IsDeadlineExceeded(err error) bool {
	var failed *AllProvidersFailedError
	return errors.As(err, &failed) && failed.DeadlineExceeded
}
