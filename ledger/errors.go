/*
errors.go - Centralized error taxonomy for the billing engine

PURPOSE:
  All error categories in one place. Other packages wrap these sentinels
  with additional context so callers can classify failures uniformly.

ERROR CATEGORIES:
  1. Validation errors - Bad user input; the record is left unchanged
  2. Storage errors    - Key-value read/write failures; non-fatal, reads
                         fall back to defaults
  3. External API errors - Time-tracking API failures; surfaced to the
                           user, never affect reconciliation

USAGE:
  if errors.Is(err, ledger.ErrValidation) { ... 400 ... }
  var se *ledger.StorageError
  if errors.As(err, &se) { ... log and fall back ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of all user-input errors. Entries that
	// fail validation are rejected, not stored.
	ErrValidation = errors.New("validation failed")

	// ErrStorage is the base of all key-value storage failures.
	ErrStorage = errors.New("storage failure")

	// ErrExternalAPI is the base of all time-tracking API failures.
	// These fail independently of the ledger: a sync error never blocks
	// charges, payments, or reconciliation.
	ErrExternalAPI = errors.New("external api failure")

	// ErrCardNotFound is returned when a referenced card doesn't exist.
	ErrCardNotFound = errors.New("card not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected user input.
type ValidationError struct {
	Field   string // e.g. "amount", "type"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError wraps a failed key-value read or write. Write failures
// leave the prior stored state as the effective state; read failures are
// handled by falling back to an empty record.
type StorageError struct {
	Op     string // "load" or "save"
	CardID CardID
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for card %s key %q: %v", e.Op, e.CardID, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing card.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound)
}
