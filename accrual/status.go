package accrual

import (
	"github.com/crednest/loan-engine/loan"
)

// OverdueAfterDays is the DPD threshold: a loan strictly past this many
// days overdue moves to the overdue status (dpd >= 6 transitions).
const OverdueAfterDays = 5

// Transition is the outcome of one status evaluation.
type Transition struct {
	Move bool
	From loan.Status
	To   loan.Status
	DPD  int
}

// EvaluateStatus decides whether a loan should move from current to
// overdue given its earliest unpaid due date and today.
//
// Only loans in the pre-overdue working status are considered; an
// already-overdue loan is a no-op, so re-running the evaluator never
// transitions twice. Loans at or under the threshold are left untouched
// and callers should not log them above debug level.
func EvaluateStatus(status loan.Status, dueDate loan.Date, today loan.Date) Transition {
	t := Transition{From: status, To: status}
	if status != loan.StatusCurrent || dueDate.IsZero() {
		return t
	}

	t.DPD = loan.DaysBetween(dueDate, today)
	if t.DPD > OverdueAfterDays {
		t.Move = true
		t.To = loan.StatusOverdue
	}
	return t
}
