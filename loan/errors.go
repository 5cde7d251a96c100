/*
errors.go - Centralized error types for the accrual engine

PURPOSE:
  All sentinel errors in one place. Callers classify with errors.Is:
  record-level data errors are skip-and-log, write conflicts are
  skip-and-retry-next-tick, and everything else bubbles to the job
  boundary.

SEE ALSO:
  - tier.go: wraps ErrMalformedTiers / ErrMalformedDueDates with detail
  - store/sqlite: returns ErrLoanNotFound / ErrVersionConflict
  - schedule: returns ErrDuplicateTask / ErrUnknownCadence
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNonPositivePrincipal marks a malformed loan row whose principal
	// is zero or negative. The loan is skipped and logged, never crashed on.
	ErrNonPositivePrincipal = errors.New("non-positive principal")

	// ErrMalformedTiers marks an undecodable late-fee tier column.
	ErrMalformedTiers = errors.New("malformed late fee tiers")

	// ErrMalformedDueDates marks an undecodable due-date column.
	ErrMalformedDueDates = errors.New("malformed due dates")

	// ErrVersionConflict is returned when an optimistic write finds the
	// row's version moved since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrDuplicateTask is returned when two jobs register the same name.
	ErrDuplicateTask = errors.New("task already registered")

	// ErrUnknownCadence is returned for a cadence the registry can't express.
	ErrUnknownCadence = errors.New("unknown cadence")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RecordError ties a record-level failure to its loan for batch logging.
type RecordError struct {
	LoanID int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("loan %d: %v", e.LoanID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordDataError reports whether an error is record-level bad data:
// the batch skips the loan, logs it, and keeps going.
func IsRecordDataError(err error) bool {
	return errors.Is(err, ErrNonPositivePrincipal) ||
		errors.Is(err, ErrMalformedTiers) ||
		errors.Is(err, ErrMalformedDueDates)
}
