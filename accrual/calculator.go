/*
Package accrual implements the daily interest and penalty computation.

PURPOSE:
  Pure functions only. Given one loan's accrual state and "today" as a
  calendar date, Calculate produces the updated figures or a no-op; it
  touches no storage and does no I/O, which is what makes the batch
  runners trivially testable.

THE TWO RULES THAT MATTER:
  1. Interest is INCREMENTAL and monotone: each run adds the interest
     earned since the last calculated date and never subtracts.
  2. Penalty is recomputed FROM SCRATCH every run from the tier table
     and the current days-overdue. The previous penalty figure is
     discarded, which is what makes re-running any number of times in
     one day safe (no double counting).

SEE ALSO:
  - status.go: the current → overdue transition rule
  - loan/tier.go: tier decoding and validation
*/
package accrual

import (
	"github.com/shopspring/decimal"

	"github.com/crednest/loan-engine/loan"
)

var hundred = decimal.NewFromInt(100)

// Result reports what Calculate did to one loan.
type Result struct {
	Updated bool

	// Interest step
	InterestDays    int
	InterestAccrued decimal.Decimal // this run's increment, already rounded

	// Penalty step
	MaxDaysOverdue int
	PenaltyBase    decimal.Decimal
	GST            decimal.Decimal
	PenaltyTotal   decimal.Decimal
}

// Calculate applies one accrual run to the state in place.
//
// The no-op guard comes first: if the loan was already calculated through
// today (or later), nothing changes. Invoking this any number of times
// within one calendar day is identical to invoking it once.
//
// A non-positive principal is malformed data: the state is left untouched
// and loan.ErrNonPositivePrincipal is returned for the caller to log.
//
// LastCalculatedDate is committed only after both steps succeed.
func Calculate(s *loan.AccrualState, today loan.Date) (Result, error) {
	if !s.LastCalculatedDate.IsZero() && !s.LastCalculatedDate.Before(today) {
		return Result{}, nil
	}
	if !s.Principal.IsPositive() {
		return Result{}, loan.ErrNonPositivePrincipal
	}

	res := Result{Updated: true}

	// Interest step: days elapsed since the last run (or since disbursal
	// for the first run). The baseline day itself was accrued by the
	// previous run, so the count is an exclusive-start difference.
	baseline := s.LastCalculatedDate
	if baseline.IsZero() {
		baseline = s.ProcessedAt
	}
	if !baseline.IsZero() {
		days := loan.DaysBetween(baseline, today)
		if days > 0 {
			increment := loan.Round2(s.Principal.Mul(s.DailyInterestRate).Mul(decimal.NewFromInt(int64(days))))
			s.AccruedInterest = loan.Round2(s.AccruedInterest.Add(increment))
			res.InterestDays = days
			res.InterestAccrued = increment
		}
	}

	// Penalty step: full recomputation, never incremental.
	res.MaxDaysOverdue = maxDaysOverdue(s.DueDates, today)
	res.PenaltyBase, res.GST, res.PenaltyTotal = penalty(s.Principal, s.Tiers, res.MaxDaysOverdue)
	s.AccruedPenalty = res.PenaltyTotal

	s.LastCalculatedDate = today
	return res, nil
}

// maxDaysOverdue returns the worst overdue-day count across all due dates.
// Today itself does not count as a full overdue day, but any loan past a
// due date is at least 1 day overdue.
func maxDaysOverdue(dueDates []loan.Date, today loan.Date) int {
	max := 0
	for _, due := range dueDates {
		if !today.After(due) {
			continue
		}
		d := loan.DaysBetween(due, today)
		if d < 1 {
			d = 1
		}
		if d > max {
			max = d
		}
	}
	return max
}

// penalty walks the tier table and produces the rounded base, GST and
// total. The GST rate is taken from the first tier; tier decoding has
// already defaulted it when the snapshot omitted one.
func penalty(principal decimal.Decimal, tiers []loan.LateFeeTier, daysOverdue int) (base, gst, total decimal.Decimal) {
	base, gst, total = decimal.Zero, decimal.Zero, decimal.Zero
	if daysOverdue <= 0 || len(tiers) == 0 {
		return base, gst, total
	}

	sum := decimal.Zero
	for _, t := range tiers {
		if t.StartDay > daysOverdue {
			continue
		}
		unit := t.FeeValue
		if t.FeeKind == loan.FeePercent {
			unit = principal.Mul(t.FeeValue).Div(hundred)
		}

		switch t.Kind {
		case loan.TierOneTime:
			sum = sum.Add(unit)
		case loan.TierUnbounded:
			days := daysOverdue - t.StartDay + 1
			sum = sum.Add(unit.Mul(decimal.NewFromInt(int64(days))))
		case loan.TierBounded:
			end := t.EndDay
			if daysOverdue < end {
				end = daysOverdue
			}
			days := end - t.StartDay + 1
			if days < 0 {
				days = 0
			}
			sum = sum.Add(unit.Mul(decimal.NewFromInt(int64(days))))
		}
	}

	base = loan.Round2(sum)
	gst = loan.Round2(base.Mul(tiers[0].GSTPercent).Div(hundred))
	total = loan.Round2(base.Add(gst))
	return base, gst, total
}
