/*
Package jobs binds the pure accrual functions to storage and scheduling.

PURPOSE:
  Each runner is one registered task's handler: load the candidate
  loans, apply the calculator or the status evaluator per loan, persist
  per loan, and record a run-audit row. All the failure-isolation rules
  live here.

FAILURE SEMANTICS:
  - Record-level data errors (malformed tiers, malformed due dates,
    non-positive principal): logged with the loan id, counted as
    failed, processing continues.
  - Record-level write errors: logged, counted as failed, processing
    continues.
  - Version conflicts: the row moved under us (payment webhook);
    counted as skipped at debug level and retried next tick.
  - Job-level fatal errors (cannot even fetch the candidates): the run
    aborts for this tick, the error is recorded on the run row and
    returned to the scheduler boundary, which logs it and waits for
    the next tick. The process never crashes.

Loans are processed sequentially in ascending id order, one persisted
write per loan. Batching writes would be faster but would lose
per-record error isolation; that trade is intentional.
*/
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crednest/loan-engine/store/sqlite"
)

// Task names as registered with the scheduler. Also the job column of
// the run-audit rows.
const (
	TaskInterestAccrual = "loan-interest-accrual"
	TaskOverdueSweep    = "loan-overdue-sweep"
	TaskNotifyQueue     = "notification-queue"
)

// OfficerAssigner is the recovery-officer collaborator invoked when a
// loan turns overdue. Assignment is best-effort: a failure is logged
// and never rolls back the status transition.
type OfficerAssigner interface {
	Assign(ctx context.Context, loanID int64) error
}

// runRecorder carries the run-audit bookkeeping shared by the runners.
type runRecorder struct {
	store *sqlite.Store
	rec   sqlite.RunRecord
}

func startRun(ctx context.Context, store *sqlite.Store, job string) *runRecorder {
	now := time.Now()
	r := &runRecorder{
		store: store,
		rec: sqlite.RunRecord{
			ID:        uuid.NewString(),
			Job:       job,
			Status:    "running",
			StartedAt: &now,
			CreatedAt: now,
		},
	}
	// A failure to write the audit row must not block the batch itself;
	// the completion write will retry the upsert.
	_ = store.SaveRun(ctx, r.rec)
	return r
}

func (r *runRecorder) complete(ctx context.Context, processed, failed, skipped int) {
	now := time.Now()
	r.rec.Status = "completed"
	r.rec.Processed = processed
	r.rec.Failed = failed
	r.rec.Skipped = skipped
	r.rec.CompletedAt = &now
	_ = r.store.SaveRun(ctx, r.rec)
}

func (r *runRecorder) fail(ctx context.Context, err error) {
	now := time.Now()
	r.rec.Status = "failed"
	r.rec.Error = err.Error()
	r.rec.CompletedAt = &now
	_ = r.store.SaveRun(ctx, r.rec)
}
