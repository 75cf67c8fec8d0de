package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OverdueMarker flags installments whose due date has passed.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int, error)
}

// BudgetReconciler recomputes budget balances.
type BudgetReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// SessionCleaner deactivates idle assistant sessions.
type SessionCleaner interface {
	CleanupSessions(ctx context.Context, retention time.Duration) (int64, error)
}

// MarkOverdueInstallmentsJob marks pending installments past due as overdue.
type MarkOverdueInstallmentsJob struct {
	contracts OverdueMarker
	log       zerolog.Logger
}

// NewMarkOverdueInstallmentsJob creates a new MarkOverdueInstallmentsJob
func NewMarkOverdueInstallmentsJob(contracts OverdueMarker, log zerolog.Logger) *MarkOverdueInstallmentsJob {
	return &MarkOverdueInstallmentsJob{
		contracts: contracts,
		log:       log.With().Str("job", "mark_overdue_installments").Logger(),
	}
}

// Name returns the job name
func (j *MarkOverdueInstallmentsJob) Name() string {
	return "mark_overdue_installments"
}

// Run executes the job
func (j *MarkOverdueInstallmentsJob) Run(ctx context.Context) error {
	n, err := j.contracts.MarkOverdue(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Int("installments", n).Msg("Overdue installments marked")
	return nil
}

// ReconcileBudgetsJob recomputes every budget's available amount.
type ReconcileBudgetsJob struct {
	budgets BudgetReconciler
	log     zerolog.Logger
}

// NewReconcileBudgetsJob creates a new ReconcileBudgetsJob
func NewReconcileBudgetsJob(budgets BudgetReconciler, log zerolog.Logger) *ReconcileBudgetsJob {
	return &ReconcileBudgetsJob{
		budgets: budgets,
		log:     log.With().Str("job", "reconcile_budgets").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileBudgetsJob) Name() string {
	return "reconcile_budgets"
}

// Run executes the job
func (j *ReconcileBudgetsJob) Run(ctx context.Context) error {
	drifted, err := j.budgets.Reconcile(ctx)
	if err != nil {
		return err
	}
	if drifted > 0 {
		j.log.Warn().Int("drifted", drifted).Msg("Budgets corrected during reconciliation")
	}
	return nil
}

// CleanupSessionsJob deactivates assistant sessions idle past retention.
type CleanupSessionsJob struct {
	sessions  SessionCleaner
	retention time.Duration
	log       zerolog.Logger
}

// NewCleanupSessionsJob creates a new CleanupSessionsJob
func NewCleanupSessionsJob(sessions SessionCleaner, retention time.Duration, log zerolog.Logger) *CleanupSessionsJob {
	return &CleanupSessionsJob{
		sessions:  sessions,
		retention: retention,
		log:       log.With().Str("job", "cleanup_sessions").Logger(),
	}
}

// Name returns the job name
func (j *CleanupSessionsJob) Name() string {
	return "cleanup_sessions"
}

// Run executes the job
func (j *CleanupSessionsJob) Run(ctx context.Context) error {
	n, err := j.sessions.CleanupSessions(ctx, j.retention)
	if err != nil {
		return err
	}
	j.log.Debug().Int64("sessions", n).Msg("Session cleanup completed")
	return nil
}
