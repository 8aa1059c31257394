package storage_test

import (
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/scrypster/secretary/internal/storage"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"m/001_init.up.sql":     {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
		"m/001_init.down.sql":   {Data: []byte("DROP TABLE a;")},
		"m/002_more.up.sql":     {Data: []byte("CREATE TABLE b (id TEXT); CREATE INDEX idx_b ON b(id);")},
		"m/002_more.down.sql":   {Data: []byte("DROP INDEX idx_b; DROP TABLE b;")},
		"m/README.md":           {Data: []byte("ignored")},
		"m/xyz_bad.up.sql":      {Data: []byte("not sql")},
		"m/003_orphan.down.sql": {Data: []byte("DROP TABLE nothing;")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n))
	return n > 0
}

func TestMigrationManager_UpDown(t *testing.T) {
	db := openDB(t)
	mgr, err := storage.NewMigrationManager(db, testMigrations(), "m")
	require.NoError(t, err)

	_, err = mgr.Version()
	assert.ErrorIs(t, err, storage.ErrNoMigration)

	applied, err := mgr.Up()
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.True(t, tableExists(t, db, "a"))
	assert.True(t, tableExists(t, db, "b"))

	v, err := mgr.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	applied, err = mgr.Up()
	require.NoError(t, err)
	assert.Zero(t, applied, "second Up is a no-op")

	require.NoError(t, mgr.Down())
	assert.False(t, tableExists(t, db, "a"))
	assert.False(t, tableExists(t, db, "b"))
	_, err = mgr.Version()
	assert.ErrorIs(t, err, storage.ErrNoMigration)
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openDB(t)
	src := fstest.MapFS{
		"m/001_ok.up.sql":  {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"m/002_bad.up.sql": {Data: []byte("CREATE TABLE bad (id TEXT); SELECT * FROM missing_table;")},
	}
	mgr, err := storage.NewMigrationManager(db, src, "m")
	require.NoError(t, err)

	applied, err := mgr.Up()
	assert.Error(t, err)
	assert.Equal(t, 1, applied)
	assert.True(t, tableExists(t, db, "ok"))
	assert.False(t, tableExists(t, db, "bad"))

	v, err := mgr.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestNewMigrationManager_Errors(t *testing.T) {
	_, err := storage.NewMigrationManager(nil, testMigrations(), "m")
	assert.Error(t, err)

	_, err = storage.NewMigrationManager(openDB(t), testMigrations(), "missing")
	assert.Error(t, err)
}
