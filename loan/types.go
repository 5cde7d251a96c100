/*
Package loan defines the domain model for the accrual engine.

PURPOSE:
  This package contains the types shared by the calculator, the batch
  runners, and the persistence layer: the per-loan accrual state, the
  tiered late-fee schedule, date-only arithmetic, and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccrualState: the single row of truth for one active loan
  - Status: loan lifecycle states this engine acts on
  - Round2: the one rounding rule every money figure goes through

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Date-only arithmetic: accrual works on calendar dates, never timestamps
  3. Ownership: AccruedInterest, AccruedPenalty and Status are mutated
     exclusively by the accrual and status runners once a loan is active

SEE ALSO:
  - tier.go: Late-fee tier sum type and its validated JSON decoding
  - date.go: Date-only value and day counting
  - errors.go: Sentinel and structured errors
*/
package loan

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Lifecycle states the engine acts on
// =============================================================================

type Status string

const (
	StatusCurrent   Status = "current"
	StatusOverdue   Status = "overdue"
	StatusCleared   Status = "cleared"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Active reports whether the accrual runners should pick up this loan.
// Cleared, cancelled and rejected loans are terminal for this engine.
func (s Status) Active() bool {
	return s == StatusCurrent || s == StatusOverdue
}

// =============================================================================
// ACCRUAL STATE - One per active loan
// =============================================================================

// AccrualState carries everything the calculator needs for one loan.
//
// Principal and DailyInterestRate come from an immutable plan snapshot
// captured at disbursal; this engine never mutates them. AccruedInterest
// only ever grows. AccruedPenalty is replaced wholesale on every run.
type AccrualState struct {
	ID                 int64
	Principal          decimal.Decimal
	DailyInterestRate  decimal.Decimal // fraction per day, e.g. 0.001 = 0.1%/day
	DueDates           []Date          // ordered, at least one for a disbursed loan
	Tiers              []LateFeeTier   // ascending by StartDay
	AccruedInterest    decimal.Decimal
	AccruedPenalty     decimal.Decimal
	LastCalculatedDate Date // zero until the first run; never in the future
	ProcessedAt        Date // disbursal date, interest baseline for the first run
	Status             Status

	// Version is the optimistic concurrency token. Request-path writes
	// (payment webhooks and the like) bump it; a stale accrual commit
	// loses and the loan is re-read on the next tick.
	Version int64
}

// EarliestDueDate returns the first due date, or a zero Date when the
// loan has none recorded.
func (s *AccrualState) EarliestDueDate() Date {
	if len(s.DueDates) == 0 {
		return Date{}
	}
	return s.DueDates[0]
}

// =============================================================================
// MONEY ROUNDING
// =============================================================================

// Round2 rounds a money value half-up to two decimal places. Every figure
// this engine persists goes through here exactly once per derivation step.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MustDecimal parses a decimal string, returning zero on failure. Only for
// values already validated at the persistence boundary.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
