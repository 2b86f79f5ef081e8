package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))

	l := Get(CategoryStore)
	l.Info("should not panic or create files")

	entries, err := os.ReadDir(filepath.Join(dir, ".memtask", "logs"))
	require.Error(t, err, "logs dir should not be created when debug mode is off")
	require.Nil(t, entries)
}

func TestInitializeEnabledWritesCategoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug", JSONFormat: true}))

	l := Get(CategoryIndex)
	l.Info("indexer booted")
	Sync()

	entries, err := os.ReadDir(filepath.Join(dir, ".memtask", "logs"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCategoryDisabledSuppressesOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{string(CategoryLinker): false},
	}))

	l := Get(CategoryLinker)
	require.Nil(t, l.sugar, "disabled category should yield a no-op logger")
}
