package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("notes")},
		"002_second.sql": {Data: []byte("SELECT 1;")},
	}

	files, err := MigrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_second.sql", "010_later.sql"}, files)
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := MigrationFiles(Migrations())
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_cart_snapshots.sql", files[0])
}
