package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/crednest/loan-engine/accrual"
	"github.com/crednest/loan-engine/loan"
	"github.com/crednest/loan-engine/store/sqlite"
)

// InterestRunner applies one accrual pass (interest increment + penalty
// recomputation) to every active loan. Registered every 4 hours in
// production; the calculator's own date guard makes the extra ticks
// within one calendar day no-ops.
type InterestRunner struct {
	store  *sqlite.Store
	logger *zap.Logger
	loc    *time.Location

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

func NewInterestRunner(store *sqlite.Store, loc *time.Location, logger *zap.Logger) *InterestRunner {
	return &InterestRunner{store: store, logger: logger, loc: loc, now: time.Now}
}

// WithClock overrides the runner's clock. Test seam.
func (r *InterestRunner) WithClock(now func() time.Time) *InterestRunner {
	r.now = now
	return r
}

// Run executes one batch pass.
func (r *InterestRunner) Run(ctx context.Context) error {
	today := loan.DateOf(r.now(), r.loc)
	rec := startRun(ctx, r.store, TaskInterestAccrual)

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

		res, err := accrual.Calculate(l, today)
		if err != nil {
			failed++
			r.logger.Error("accrual calculation failed",
				zap.Int64("loan_id", l.ID),
				zap.Error(err),
			)
			continue
		}
		if !res.Updated {
			skipped++
			continue
		}

		if err := r.store.UpdateAccrual(ctx, l); err != nil {
			if errors.Is(err, loan.ErrVersionConflict) {
				skipped++
				r.logger.Debug("loan moved since read, deferring to next tick",
					zap.Int64("loan_id", l.ID),
				)
				continue
			}
			failed++
			r.logger.Error("failed to persist accrual",
				zap.Int64("loan_id", l.ID),
				zap.Error(err),
			)
			continue
		}

		processed++
		r.logger.Debug("loan accrued",
			zap.Int64("loan_id", l.ID),
			zap.Int("interest_days", res.InterestDays),
			zap.String("interest_added", res.InterestAccrued.String()),
			zap.Int("days_overdue", res.MaxDaysOverdue),
			zap.String("penalty_total", res.PenaltyTotal.String()),
		)
	}

	rec.complete(ctx, processed, failed, skipped)

	if processed > 0 || failed > 0 {
		r.logger.Info("interest accrual run completed",
			zap.String("date", today.String()),
			zap.Int("processed", processed),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}
