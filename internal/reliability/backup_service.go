// Package reliability provides database snapshots, off-site backups and
// maintenance jobs.
package reliability

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/minerva/internal/database"
	"github.com/rs/zerolog"
)

// snapshotLayout is embedded in snapshot and backup names.
const snapshotLayout = "2006-01-02-150405"

// Snapshot is a consistent copy of the database on local disk.
type Snapshot struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupService creates local database snapshots.
type BackupService struct {
	db         *database.DB
	stagingDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a backup service that stages files in stagingDir.
func NewBackupService(db *database.DB, stagingDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:         db,
		stagingDir: stagingDir,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// CreateSnapshot writes a compacted copy of the database with VACUUM INTO.
// The caller owns the returned file.
func (s *BackupService) CreateSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	created := s.now().UTC()
	path := filepath.Join(s.stagingDir, fmt.Sprintf("minerva-%s.db", created.Format(snapshotLayout)))
	_ = os.Remove(path)

	if err := s.db.VacuumInto(ctx, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := fileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	s.log.Info().
		Str("path", path).
		Int64("size_bytes", info.Size()).
		Msg("Database snapshot created")

	return &Snapshot{Path: path, SizeBytes: info.Size(), Checksum: checksum, CreatedAt: created}, nil
}

// fileChecksum calculates SHA256 checksum of a file
func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
