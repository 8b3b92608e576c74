package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingFiles_SkipsAppliedAndNonSQL(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0001_init.sql", "0002_bars.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o644))
	}

	files, err := pendingFiles(dir, map[string]bool{"0001_init.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_bars.sql"}, files)
}

func TestPendingFiles_SortedLexically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0003_later.sql", "0001_init.sql", "0002_bars.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o644))
	}

	files, err := pendingFiles(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_bars.sql", "0003_later.sql"}, files)
}
