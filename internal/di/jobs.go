package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/minerva/internal/config"
	"github.com/aristath/minerva/internal/reliability"
	"github.com/aristath/minerva/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers every background job.
// The scheduler is not started.
func RegisterJobs(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	container.Scheduler = sched

	container.BackupService = reliability.NewBackupService(container.DB, filepath.Join(cfg.DataDir, "backups"), log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.OverdueCheck, scheduler.NewMarkOverdueInstallmentsJob(container.ContractService, log)},
		{cfg.Schedules.BudgetReconcile, scheduler.NewReconcileBudgetsJob(container.BudgetService, log)},
		{cfg.Schedules.SessionCleanup, scheduler.NewCleanupSessionsJob(container.AssistantService, cfg.Assistant.SessionRetention, log)},
		{cfg.Schedules.DatabaseCheck, reliability.NewMaintenanceJob(container.DB, cfg.DataDir, log)},
	}

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.S3BackupService = reliability.NewS3BackupService(
			store,
			container.BackupService,
			cfg.Backup.Prefix,
			cfg.Backup.Retention,
			container.EventManager,
			log,
		)
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Schedules.Backup, container.S3BackupService})
	} else {
		log.Info().Msg("Backup bucket not configured, off-site backups disabled")
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
	}

	log.Info().Int("jobs", len(jobs)).Msg("Jobs registered")
	return nil
}
