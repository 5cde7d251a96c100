package jobs

import (
	"context"

	"go.uber.org/zap"
)

// The production deployments wire real collaborators here (the CRM's
// officer-allocation endpoint, the SMS vendor). The logging
// implementations below are the in-repo defaults so the engine runs
// end to end without external credentials.

// LogOfficerAssigner records assignment requests without calling out.
type LogOfficerAssigner struct {
	Logger *zap.Logger
}

func (a *LogOfficerAssigner) Assign(ctx context.Context, loanID int64) error {
	a.Logger.Info("recovery officer assignment requested",
		zap.Int64("loan_id", loanID),
	)
	return nil
}

// LogGateway records sends without delivering. The recipient field
// carries a loan reference; a real gateway implementation resolves the
// borrower's contact from it.
type LogGateway struct {
	Logger *zap.Logger
}

func (g *LogGateway) Send(ctx context.Context, recipient, message string) error {
	g.Logger.Info("notification delivered",
		zap.String("recipient", recipient),
	)
	return nil
}
