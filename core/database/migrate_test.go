package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationFilesSortsByVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000010_refunds.up.sql",
		"000002_catalog.up.sql",
		"000002_catalog.down.sql",
		"000001_users.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o700))

	files := listMigrationFiles(dir)
	require.Len(t, files, 3)
	assert.Equal(t, uint64(1), files[0].version)
	assert.Equal(t, "000002_catalog.up.sql", files[1].name)
	assert.Equal(t, uint64(10), files[2].version)

	assert.Nil(t, listMigrationFiles(filepath.Join(dir, "missing")))
}

func TestAppliedBetween(t *testing.T) {
	files := []migrationFile{{1, "a"}, {2, "b"}, {3, "c"}}

	assert.Equal(t, []migrationFile{{2, "b"}, {3, "c"}}, appliedBetween(files, 1, 3))
	assert.Empty(t, appliedBetween(files, 3, 3))
	assert.Empty(t, appliedBetween(files, 3, 1))
}

func TestResolveMigrationsDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "m")
	got, err := resolveMigrationsDir(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, got)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	got, err = resolveMigrationsDir("  ")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "migrations"), got)
}

func TestConfigRendersDSNAndURL(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "shop", Password: "pw", Name: "cards"}
	assert.Equal(t, "user=shop password=pw host=db port=5432 dbname=cards sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://shop:pw@db:5432/cards?sslmode=disable", cfg.URL())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.URL(), "sslmode=require")
}
