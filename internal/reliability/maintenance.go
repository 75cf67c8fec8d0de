package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/minerva/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	criticalFreeBytes = 500 << 20
	lowFreeBytes      = 5 << 30
)

// DiskUsage reports free space for a path.
type DiskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)

// MaintenanceJob runs a quick integrity check and a passive WAL checkpoint,
// then watches free disk space.
type MaintenanceJob struct {
	db      *database.DB
	dataDir string
	usage   DiskUsage
	log     zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		usage:   disk.UsageWithContext,
		log:     log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run(ctx context.Context) error {
	start := time.Now()

	if err := j.db.QuickCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Database quick check failed")
		return err
	}

	if err := j.db.WALCheckpoint("PASSIVE"); err != nil {
		// Not critical: the next checkpoint will catch up.
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	if stats, err := j.db.GetStats(); err == nil {
		j.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Int64("freelist_count", stats.FreelistCount).
			Dur("duration", time.Since(start)).
			Msg("Database maintenance completed")
	}
	return nil
}

// checkDiskSpace fails when the data directory is nearly full.
func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	usage, err := j.usage(ctx, j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	free := usage.Free
	switch {
	case free < criticalFreeBytes:
		j.log.Error().Uint64("free_bytes", free).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %d MB free in %s", free>>20, j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Uint64("free_bytes", free).Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	default:
		j.log.Debug().Uint64("free_bytes", free).Msg("Disk space check")
	}
	return nil
}
