// Package coreerr classifies the agentic core's error taxonomy (spec §7) so
// handlers can map any error to an SSE/HTTP surface without string-matching
// messages.
package coreerr

import "errors"

// Kind is one of the core's distinct error categories.
type Kind string

const (
	KindThrottled             Kind = "throttled"
	KindInsufficient          Kind = "insufficient"
	KindProviderRateLimited   Kind = "provider_rate_limited"
	KindProviderError         Kind = "provider_error"
	KindToolExecution         Kind = "tool_execution"
	KindAdminRequired         Kind = "admin_required"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
	KindCancelled             Kind = "cancelled"
	KindUnknown               Kind = "unknown"
)

// coreError pairs a Kind with an underlying cause for %w-based wrapping.
type coreError struct {
	kind Kind
	err  error
}

func (e *coreError) Error() string { return string(e.kind) + ": " + e.err.Error() }
func (e *coreError) Unwrap() error { return e.err }

// Wrap annotates err with kind so ClassifyKind(err) can recover it later.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &coreError{kind: kind, err: err}
}

// ClassifyKind recovers the classified Kind of err, or KindUnknown if err was
// never wrapped by this package.
func ClassifyKind(err error) Kind {
	var ce *coreError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindUnknown
}

// Action maps a Kind to the action hint the SSE/HTTP surface attaches to an
// error event, per spec §6/§7. Empty string means no action.
func Action(k Kind) string {
	switch k {
	case KindInsufficient:
		return "upgrade"
	case KindThrottled:
		return "rate_limited"
	default:
		return ""
	}
}
