package accrual_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crednest/loan-engine/accrual"
	"github.com/crednest/loan-engine/loan"
)

func TestEvaluateStatus_FiveDaysPastDue_NoTransition(t *testing.T) {
	// GIVEN: a current loan exactly 5 days past due
	// WHEN: evaluating the status
	// THEN: the loan stays current (threshold is strictly greater than 5)

	due := loan.NewDate(2025, time.March, 10)
	tr := accrual.EvaluateStatus(loan.StatusCurrent, due, due.AddDays(5))

	assert.False(t, tr.Move)
	assert.Equal(t, 5, tr.DPD)
	assert.Equal(t, loan.StatusCurrent, tr.To)
}

func TestEvaluateStatus_SixDaysPastDue_Transitions(t *testing.T) {
	// GIVEN: a current loan 6 days past due
	// WHEN: evaluating the status
	// THEN: the loan moves to overdue

	due := loan.NewDate(2025, time.March, 10)
	tr := accrual.EvaluateStatus(loan.StatusCurrent, due, due.AddDays(6))

	assert.True(t, tr.Move)
	assert.Equal(t, 6, tr.DPD)
	assert.Equal(t, loan.StatusCurrent, tr.From)
	assert.Equal(t, loan.StatusOverdue, tr.To)
}

func TestEvaluateStatus_AlreadyOverdue_NoOp(t *testing.T) {
	// GIVEN: a loan already in overdue status, far past due
	// WHEN: re-running the evaluator
	// THEN: no transition fires a second time

	due := loan.NewDate(2025, time.March, 10)
	tr := accrual.EvaluateStatus(loan.StatusOverdue, due, due.AddDays(60))

	assert.False(t, tr.Move)
	assert.Equal(t, loan.StatusOverdue, tr.To)
}

func TestEvaluateStatus_TerminalStatuses_Untouched(t *testing.T) {
	due := loan.NewDate(2025, time.March, 10)
	today := due.AddDays(30)

	for _, s := range []loan.Status{loan.StatusCleared, loan.StatusCancelled, loan.StatusRejected} {
		tr := accrual.EvaluateStatus(s, due, today)
		assert.False(t, tr.Move, "status %s must not transition", s)
	}
}

func TestEvaluateStatus_NoDueDate_NoOp(t *testing.T) {
	tr := accrual.EvaluateStatus(loan.StatusCurrent, loan.Date{}, loan.NewDate(2025, time.March, 10))
	assert.False(t, tr.Move)
}
