package engine

import (
	"errors"
	"fmt"
)

// SchedulerError is returned synchronously by scheduling calls that
// cannot be honoured. Tables are left untouched when one is returned.
type SchedulerError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Pin is set for watch configuration errors.
	Pin int

	// ID is the handle ID for unknown-timer/unknown-watch errors.
	ID int64

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes scheduler errors.
type ErrorCode string

const (
	// ErrCodeInvalidEdge indicates an unsupported edge policy.
	ErrCodeInvalidEdge ErrorCode = "INVALID_EDGE"

	// ErrCodePinReserved indicates the pin is claimed by another peripheral.
	ErrCodePinReserved ErrorCode = "PIN_RESERVED"

	// ErrCodeNoCallback indicates a nil callback target.
	ErrCodeNoCallback ErrorCode = "NO_CALLBACK"

	// ErrCodeTooManyArgs indicates more than ir.MaxArgs callback arguments.
	ErrCodeTooManyArgs ErrorCode = "TOO_MANY_ARGS"

	// ErrCodeUnknownTimer indicates a stale or never-issued timer handle.
	ErrCodeUnknownTimer ErrorCode = "UNKNOWN_TIMER"

	// ErrCodeUnknownWatch indicates a stale or never-issued watch handle.
	ErrCodeUnknownWatch ErrorCode = "UNKNOWN_WATCH"

	// ErrCodeOutOfMemory indicates a table or the queue is at capacity.
	ErrCodeOutOfMemory ErrorCode = "OUT_OF_MEMORY"

	// ErrCodeForeignGoroutine indicates a table mutation off the consumer goroutine.
	ErrCodeForeignGoroutine ErrorCode = "FOREIGN_GOROUTINE"
)

// ErrInterrupted is returned by invokers when an interrupt request cut a
// callback short.
var ErrInterrupted = errors.New("execution interrupted")

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	switch {
	case e.ID != 0:
		return fmt.Sprintf("%s: %s (id=%d)", e.Code, e.Message, e.ID)
	case e.Code == ErrCodePinReserved || e.Code == ErrCodeInvalidEdge:
		return fmt.Sprintf("%s: %s (pin=%d)", e.Code, e.Message, e.Pin)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsPinReserved reports whether err is a PIN_RESERVED error.
func IsPinReserved(err error) bool { return hasCode(err, ErrCodePinReserved) }

// IsInvalidEdge reports whether err is an INVALID_EDGE error.
func IsInvalidEdge(err error) bool { return hasCode(err, ErrCodeInvalidEdge) }

// IsUnknownHandle reports whether err names a timer or watch that does not exist.
func IsUnknownHandle(err error) bool {
	return hasCode(err, ErrCodeUnknownTimer) || hasCode(err, ErrCodeUnknownWatch)
}

// IsOutOfMemory reports whether err is a capacity error.
func IsOutOfMemory(err error) bool { return hasCode(err, ErrCodeOutOfMemory) }

// NewPinReservedError reports a pin claimed by another peripheral.
func NewPinReservedError(pin int, owner string) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodePinReserved,
		Message: fmt.Sprintf("pin is already in use by %s", owner),
		Pin:     pin,
		Details: map[string]string{"owner": owner},
	}
}

// NewInvalidEdgeError reports an unsupported edge policy.
func NewInvalidEdgeError(pin int, edge string) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeInvalidEdge,
		Message: fmt.Sprintf("unsupported edge %q", edge),
		Pin:     pin,
	}
}

func newUnknownTimerError(h Handle) *SchedulerError {
	return &SchedulerError{Code: ErrCodeUnknownTimer, Message: "no such timer", ID: h.ID()}
}

func newUnknownWatchError(h Handle) *SchedulerError {
	return &SchedulerError{Code: ErrCodeUnknownWatch, Message: "no such watch", ID: h.ID()}
}

func newNoCallbackError(what string) *SchedulerError {
	return &SchedulerError{Code: ErrCodeNoCallback, Message: what + " requires a callback"}
}
