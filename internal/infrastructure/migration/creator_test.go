package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/edgesync/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_Embedded(t *testing.T) {
	files, err := List(migrations.FS)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
	assert.Equal(t, uint(1), files[0].Version)
	assert.Equal(t, "edge_records", files[0].Name)
	assert.Equal(t, "uplink_outbox", files[1].Name)
	for _, f := range files {
		assert.NotEmpty(t, f.DownPath, f.Name)
	}
}

func TestList_IgnoresStrayFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":     {},
		"000001_a.up.sql":     {},
		"000001_a.down.sql":   {},
		"000003_c.down.sql":   {},
		"README.md":           {},
		"sub/000004_d.up.sql": {},
	}
	files, err := List(fsys)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Name)
	assert.Equal(t, "b", files[1].Name)
	assert.Empty(t, files[1].DownPath)
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	first, err := Create(dir, "Add device profiles")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_device_profiles.up.sql"), first.UpPath)

	second, err := Create(dir, "index-assets")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
	assert.FileExists(t, second.DownPath)

	data, err := os.ReadFile(second.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index_assets")

	_, err = Create(dir, "!!!")
	assert.Error(t, err)
}
