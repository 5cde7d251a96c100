package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crednest/loan-engine/accrual"
	"github.com/crednest/loan-engine/loan"
	"github.com/crednest/loan-engine/notify"
	"github.com/crednest/loan-engine/store/sqlite"
)

// OverdueRunner is the daily status sweep: any loan more than five days
// past its due date moves from current to overdue. The status write is
// the source of truth; officer assignment and the borrower notification
// are best-effort side effects that never roll it back.
type OverdueRunner struct {
	store    *sqlite.Store
	assigner OfficerAssigner
	queue    notify.Queue
	logger   *zap.Logger
	loc      *time.Location

	now func() time.Time
}

func NewOverdueRunner(store *sqlite.Store, assigner OfficerAssigner, queue notify.Queue, loc *time.Location, logger *zap.Logger) *OverdueRunner {
	return &OverdueRunner{
		store:    store,
		assigner: assigner,
		queue:    queue,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock overrides the runner's clock. Test seam.
func (r *OverdueRunner) WithClock(now func() time.Time) *OverdueRunner {
	r.now = now
	return r
}

// Run executes one sweep.
func (r *OverdueRunner) Run(ctx context.Context) error {
	today := loan.DateOf(r.now(), r.loc)
	rec := startRun(ctx, r.store, TaskOverdueSweep)

	loans, rejects, err := r.store.ListActiveLoans(ctx)
	if err != nil {
		rec.fail(ctx, err)
		return err
	}

	processed, failed, skipped := 0, 0, 0

	for _, reject := range rejects {
		failed++
		r.logger.Error("loan row rejected, dead-lettering",
			zap.Int64("loan_id", reject.LoanID),
			zap.Error(reject.Err),
		)
	}

	for i := range loans {
		l := &loans[i]

		tr := accrual.EvaluateStatus(l.Status, l.EarliestDueDate(), today)
		if !tr.Move {
			// Within threshold or already overdue. Deliberately no log
			// line here: this fires for nearly every loan every day.
			skipped++
			continue
		}

		if err := r.store.UpdateStatus(ctx, l.ID, tr.From, tr.To, l.Version); err != nil {
			if errors.Is(err, loan.ErrVersionConflict) {
				skipped++
				r.logger.Debug("loan moved since read, deferring to next tick",
					zap.Int64("loan_id", l.ID),
				)
				continue
			}
			failed++
			r.logger.Error("failed to persist status transition",
				zap.Int64("loan_id", l.ID),
				zap.Error(err),
			)
			continue
		}

		processed++
		r.logger.Info("loan marked overdue",
			zap.Int64("loan_id", l.ID),
			zap.Int("dpd", tr.DPD),
		)

		// Side effects after the commit. Failures here are logged and
		// retried through their own channels, never rolled back into
		// the status change.
		if err := r.assigner.Assign(ctx, l.ID); err != nil {
			r.logger.Error("recovery officer assignment failed",
				zap.Int64("loan_id", l.ID),
				zap.Error(err),
			)
		}

		n := notify.New(
			fmt.Sprintf("loan:%d", l.ID),
			fmt.Sprintf("Your loan is %d days past due. Please clear the outstanding amount to avoid further late fees.", tr.DPD),
		)
		if err := r.queue.Enqueue(ctx, n); err != nil {
			r.logger.Error("failed to enqueue overdue notification",
				zap.Int64("loan_id", l.ID),
				zap.Error(err),
			)
		}
	}

	rec.complete(ctx, processed, failed, skipped)

	if processed > 0 || failed > 0 {
		r.logger.Info("overdue sweep completed",
			zap.String("date", today.String()),
			zap.Int("transitioned", processed),
			zap.Int("failed", failed),
		)
	}
	return nil
}
