package main

import (
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		name     string
	}{
		{"0001_reference_tables.sql", true, "reference_tables"},
		{"001_invalid.sql", false, ""},
		{"0001_test", false, ""},
		{"0001.sql", false, ""},
		{"invalid_0001_test.sql", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationPattern.FindStringSubmatch(tt.filename)
			if !tt.valid {
				assert.Nil(t, matches)
				return
			}
			require.NotNil(t, matches)
			assert.Equal(t, tt.name, matches[2])
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_transactions.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` (id STRING);")},
		"0001_reference.sql":    {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.accounts` (id STRING);")},
		"README.md":             {Data: []byte("notes")},
	}

	migrations, err := readMigrations(fsys, "proj", "books", zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "reference", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `proj.books.accounts` (id STRING);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)

	again, err := readMigrations(fsys, "other", "dataset", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, migrations[0].Checksum, again[0].Checksum, "checksum ignores placeholders")
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 2")},
	}
	_, err := readMigrations(fsys, "p", "d", zerolog.Nop())
	assert.Error(t, err)
}

func TestPendingAndMismatches(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
		{Version: 3, Filename: "0003_c.sql", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "changed"},
	}

	pending := pendingMigrations(migrations, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)

	assert.Equal(t, []string{"0002_b.sql"}, checksumMismatches(migrations, applied))
}
