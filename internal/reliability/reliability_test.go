package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/minerva/internal/events"
	testingpkg "github.com/aristath/minerva/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory ObjectStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, SizeBytes: int64(len(v))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestCreateSnapshot(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "snapshot")
	testingpkg.NewFixtures(t, db.Conn()).ManagementCenter("CG-01")

	svc := NewBackupService(db, t.TempDir(), zerolog.Nop())
	snap, err := svc.CreateSnapshot(context.Background())
	require.NoError(t, err)
	assert.Positive(t, snap.SizeBytes)
	assert.True(t, strings.HasPrefix(snap.Checksum, "sha256:"))
	assert.FileExists(t, snap.Path)
}

func TestS3BackupService_CreateAndUpload(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "backup_upload")
	store := newMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	sub := bus.Subscribe(4, events.BackupCompleted)

	svc := NewS3BackupService(store, NewBackupService(db, t.TempDir(), zerolog.Nop()), "prod/", 0,
		events.NewManager(bus, zerolog.Nop()), zerolog.Nop())

	meta, err := svc.RunBackup(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(meta.Key, "prod/minerva-backup-"))
	assert.True(t, strings.HasSuffix(meta.Key, ".db.gz"))
	require.Len(t, store.keys(), 2)

	zr, err := gzip.NewReader(bytes.NewReader(store.objects[meta.Key]))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("SQLite format 3")))
	assert.EqualValues(t, meta.SizeBytes, len(raw))

	sidecar := strings.TrimSuffix(meta.Key, ".db.gz") + ".json"
	assert.Contains(t, string(store.objects[sidecar]), meta.Checksum)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, meta.Key, backups[0].Key)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, meta.Key, ev.Data["key"])
	case <-time.After(time.Second):
		t.Fatal("expected a backup completed event")
	}
}

func TestS3BackupService_Prune(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for _, days := range []int{1, 2, 3, 40, 50, 60} {
		stamp := now.AddDate(0, 0, -days).Format(snapshotLayout)
		store.objects["minerva-backup-"+stamp+".db.gz"] = []byte("x")
		store.objects["minerva-backup-"+stamp+".json"] = []byte("{}")
	}
	store.objects["minerva-backup-garbage.db.gz"] = []byte("x")

	svc := NewS3BackupService(store, nil, "", 30*24*time.Hour, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	deleted, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Equal(t, int64(24), backups[0].AgeHours)
	assert.Len(t, store.keys(), 7)
}

func TestS3BackupService_PruneKeepsMinimum(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for _, days := range []int{100, 200} {
		store.objects["minerva-backup-"+now.AddDate(0, 0, -days).Format(snapshotLayout)+".db.gz"] = []byte("x")
	}
	svc := NewS3BackupService(store, nil, "", 24*time.Hour, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	deleted, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMaintenanceJob(t *testing.T) {
	db, _ := testingpkg.NewTestDB(t, "maintenance")
	job := NewMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "database_maintenance", job.Name())

	job.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 50 << 30}, nil
	}
	assert.NoError(t, job.Run(context.Background()))

	job.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 10 << 20}, nil
	}
	assert.Error(t, job.Run(context.Background()))

	job.usage = func(context.Context, string) (*disk.UsageStat, error) {
		return nil, errors.New("no such filesystem")
	}
	assert.Error(t, job.Run(context.Background()))
}
