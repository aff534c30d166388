package migrations

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect_EmbeddedMigrationsAreOrdered(t *testing.T) {
	all, err := Collect()
	require.NoError(t, err)
	require.Len(t, all, 6)

	for i, m := range all {
		assert.Equal(t, int64(i+1), m.Version)
	}
	assert.True(t, strings.HasSuffix(all[len(all)-1].Source, "00006_add_outbox_claimed_at.sql"))
}

func TestEmbeddedMigrationsHaveDownSections(t *testing.T) {
	entries, err := embedded.ReadDir(Dir)
	require.NoError(t, err)

	for _, e := range entries {
		data, err := embedded.ReadFile(Dir + "/" + e.Name())
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", e.Name())
		assert.Contains(t, string(data), "-- +goose Down", e.Name())
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateMigration(dir, "add_index")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "00007_add_index.sql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
}
