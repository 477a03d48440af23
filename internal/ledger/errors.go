package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptLedger indicates a ledger document that exists but cannot be trusted.
	ErrCorruptLedger = errors.New("corrupt ledger")

	// ErrPersistence indicates the ledger could not be written.
	ErrPersistence = errors.New("ledger persistence failed")
)

// CorruptLedgerError describes why a ledger document was rejected.
type CorruptLedgerError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *CorruptLedgerError) Error() string {
	msg := "corrupt ledger"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *CorruptLedgerError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *CorruptLedgerError) Is(target error) bool {
	return target == ErrCorruptLedger
}

// PersistenceError wraps an I/O failure while saving the ledger.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s ledger %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
