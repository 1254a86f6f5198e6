package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the session map.
var ErrSessionNotFound = errors.New("session not found")

// ErrCircuitOpen is returned when a call is rejected because the service's circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrRateLimited is returned when admission control rejects a request.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrToolNotFound is returned by tool callers that do not know the requested tool.
var ErrToolNotFound = errors.New("tool not found")

// ErrNoPlan is returned when no execution plan applies to the extracted intents.
var ErrNoPlan = errors.New("no execution plan for intent")

// ErrEmptyMessage is returned when a turn is submitted without any text.
var ErrEmptyMessage = errors.New("message is empty")

// ErrPlanStalled marks a plan that stopped with pending steps none of which could run.
var ErrPlanStalled = errors.New("plan stalled: pending steps have unresolved dependencies")

// ErrNoGenerator is returned when a language model call is attempted without a configured model.
var ErrNoGenerator = errors.New("no language model configured")

// RemoteError describes a failure reported by a remote collaborator (tool backend or LLM).
// Code carries a symbolic error code (e.g. ECONNRESET), Status an HTTP status when known.
type RemoteError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("%s (status %d, %s)", e.Message, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	case e.Code != "":
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	default:
		return e.Message
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
