package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "minerva.db"), Profile: ProfileStandard, Name: "minerva"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='budget_budget'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("boom")

	err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sector_direction (name, created_at, updated_at) VALUES ('DIRETORIA', ?, ?)`, Now(), Now())
		require.NoError(t, err)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM sector_direction`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := newTestDB(t)
	err := WithTransaction(context.Background(), db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestForeignKeysEnforced(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Conn().Exec(`INSERT INTO sector_management (name, direction_id, created_at, updated_at) VALUES ('GERENCIA', 999, ?, ?)`, Now(), Now())
	assert.True(t, IsForeignKeyViolation(err))
}

func TestScanHelpers(t *testing.T) {
	db := newTestDB(t)
	stamp := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	_, err := db.Conn().Exec(`INSERT INTO sector_direction (name, created_at, updated_at) VALUES ('DIRETORIA', ?, ?)`, FormatTime(stamp), FormatTime(stamp))
	require.NoError(t, err)

	var created time.Time
	var createdBy *int64
	missing := "stale"
	err = db.Conn().QueryRow(`SELECT created_at, created_by, NULL FROM sector_direction`).Scan(ScanTime(&created), ScanNullInt64(&createdBy), ScanNullString(&missing))
	require.NoError(t, err)
	assert.True(t, stamp.Equal(created))
	assert.Nil(t, createdBy)
	assert.Empty(t, missing)

	_, err = db.Conn().Exec(`INSERT INTO sector_direction (name, created_at, updated_at) VALUES ('DIRETORIA', ?, ?)`, Now(), Now())
	assert.True(t, IsUniqueViolation(err))
}

func TestVacuumInto(t *testing.T) {
	db := newTestDB(t)
	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.VacuumInto(context.Background(), dest))
	assert.Error(t, db.VacuumInto(context.Background(), dest))
}

func TestQuickCheckAndCheckpoint(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.QuickCheck(context.Background()))

	for _, mode := range []string{"", "passive", "TRUNCATE"} {
		assert.NoError(t, db.WALCheckpoint(mode), mode)
	}
	assert.Error(t, db.WALCheckpoint("PASSIVE); DROP TABLE budget_budget; --"))
}

func TestOrderBy(t *testing.T) {
	allowed := map[string]string{"year": "b.year", "category": "b.category"}
	assert.Equal(t, " ORDER BY b.year DESC, b.category ASC", OrderBy("-year,category", allowed, "b.id"))
	assert.Equal(t, " ORDER BY b.id", OrderBy("password", allowed, "b.id"))
	assert.Equal(t, " ORDER BY b.id", OrderBy("", allowed, "b.id"))
}

func TestWhere(t *testing.T) {
	var w Where
	assert.Equal(t, "", w.SQL())

	w.Add("b.year = ?", 2025)
	w.Search("50%", "b.name", "b.description")
	assert.Equal(t, " WHERE b.year = ? AND (b.name LIKE ? ESCAPE '\\' OR b.description LIKE ? ESCAPE '\\')", w.SQL())
	assert.Equal(t, []interface{}{2025, `%50\%%`, `%50\%%`}, w.Args())
}
