package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/versync/internal/ir"
)

// ErrStopped is returned when submitting to an engine that was stopped.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an error detected while the engine handles a
// message.
//
// RuntimeError includes structured fields for diagnostics. The underlying
// cause is available through errors.Unwrap.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Op is the message operation being handled.
	Op ir.Op

	// Seq is the logical clock stamp of the message, 0 if none.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeSendFailed indicates the transport rejected a command.
	ErrCodeSendFailed RuntimeErrorCode = "SEND_FAILED"

	// ErrCodeReceiveFailed indicates a notification violated the lifecycle.
	ErrCodeReceiveFailed RuntimeErrorCode = "RECEIVE_FAILED"

	// ErrCodeJournalFailed indicates a journal write failed.
	ErrCodeJournalFailed RuntimeErrorCode = "JOURNAL_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (seq=%d): %v", e.Code, e.Op, e.Seq, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsSendError returns true if the error is a transport send failure.
// Uses errors.As to handle wrapped errors.
func IsSendError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSendFailed
	}
	return false
}

// IsReceiveError returns true if the error came from applying a
// notification.
func IsReceiveError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReceiveFailed
	}
	return false
}

// IsJournalError returns true if the error is a journal write failure.
func IsJournalError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeJournalFailed
	}
	return false
}
