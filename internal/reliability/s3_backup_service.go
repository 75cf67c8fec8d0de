package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aristath/minerva/internal/events"
	"github.com/rs/zerolog"
)

const (
	backupNamePrefix = "minerva-backup-"
	backupSuffix     = ".db.gz"
	metadataSuffix   = ".json"

	// minBackupsToKeep survive pruning regardless of age.
	minBackupsToKeep = 3
)

// BackupMetadata is uploaded next to every backup.
type BackupMetadata struct {
	Key              string    `json:"key"`
	Timestamp        time.Time `json:"timestamp"`
	SizeBytes        int64     `json:"size_bytes"`
	CompressedBytes  int64     `json:"compressed_bytes"`
	Checksum         string    `json:"checksum"`
	CompressedFormat string    `json:"compressed_format"`
}

// BackupInfo represents a backup stored in the bucket.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// S3BackupService uploads compressed snapshots and rotates old ones.
type S3BackupService struct {
	store     ObjectStore
	backups   *BackupService
	prefix    string
	retention time.Duration
	events    *events.Manager
	now       func() time.Time
	log       zerolog.Logger
}

// NewS3BackupService creates an off-site backup service. A zero retention
// keeps every backup.
func NewS3BackupService(store ObjectStore, backups *BackupService, prefix string, retention time.Duration, eventManager *events.Manager, log zerolog.Logger) *S3BackupService {
	return &S3BackupService{
		store:     store,
		backups:   backups,
		prefix:    strings.Trim(prefix, "/"),
		retention: retention,
		events:    eventManager,
		now:       time.Now,
		log:       log.With().Str("service", "s3_backup").Logger(),
	}
}

func (s *S3BackupService) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// CreateAndUpload snapshots the database, gzips it and uploads it together
// with a metadata sidecar.
func (s *S3BackupService) CreateAndUpload(ctx context.Context) (*BackupMetadata, error) {
	s.log.Info().Msg("Starting backup")
	start := s.now()

	snap, err := s.backups.CreateSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer os.Remove(snap.Path)

	compressed := snap.Path + ".gz"
	size, err := gzipFile(snap.Path, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	defer os.Remove(compressed)

	name := backupNamePrefix + snap.CreatedAt.Format(snapshotLayout)
	meta := &BackupMetadata{
		Key:              s.key(name + backupSuffix),
		Timestamp:        snap.CreatedAt,
		SizeBytes:        snap.SizeBytes,
		CompressedBytes:  size,
		Checksum:         snap.Checksum,
		CompressedFormat: "gzip",
	}

	f, err := os.Open(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed snapshot: %w", err)
	}
	defer f.Close()
	if err := s.store.Upload(ctx, meta.Key, f, "application/gzip"); err != nil {
		return nil, err
	}

	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup metadata: %w", err)
	}
	if err := s.store.Upload(ctx, s.key(name+metadataSuffix), bytes.NewReader(sidecar), "application/json"); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", meta.Key).
		Int64("size_bytes", meta.SizeBytes).
		Int64("compressed_bytes", meta.CompressedBytes).
		Dur("duration", s.now().Sub(start)).
		Msg("Backup uploaded")
	return meta, nil
}

// ListBackups lists stored backups, newest first.
func (s *S3BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	listPrefix := s.key(backupNamePrefix)
	objects, err := s.store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, listPrefix), backupSuffix)
		ts, err := time.Parse(snapshotLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup key")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Prune deletes backups older than the retention period, always keeping the
// newest minBackupsToKeep. It returns how many backups were removed.
func (s *S3BackupService) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.retention)

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		sidecar := strings.TrimSuffix(b.Key, backupSuffix) + metadataSuffix
		if err := s.store.Delete(ctx, sidecar); err != nil {
			s.log.Warn().Err(err).Str("key", sidecar).Msg("Failed to delete backup metadata")
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

// RunBackup uploads a new backup and prunes old ones. Failures are published
// as error events.
func (s *S3BackupService) RunBackup(ctx context.Context) (*BackupMetadata, error) {
	meta, err := s.CreateAndUpload(ctx)
	if err != nil {
		s.events.EmitError("backup", err, nil)
		return nil, err
	}
	pruned, err := s.Prune(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Backup rotation failed")
	}
	s.events.EmitTyped("backup", &events.BackupCompletedData{
		Key:       meta.Key,
		SizeBytes: meta.SizeBytes,
		Checksum:  meta.Checksum,
		Pruned:    pruned,
	})
	return meta, nil
}

// Name implements the scheduler job interface.
func (s *S3BackupService) Name() string {
	return "backup"
}

// Run implements the scheduler job interface.
func (s *S3BackupService) Run(ctx context.Context) error {
	_, err := s.RunBackup(ctx)
	return err
}

// gzipFile compresses src into dst and returns the compressed size.
func gzipFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
