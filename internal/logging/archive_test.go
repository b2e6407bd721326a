package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveWriterCreatesDailyFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewArchiveWriter(dir, "")
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}\.log$`, entries[0].Name())
}

func TestArchiveWriterAppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewArchiveWriter(dir, "")
	require.NoError(t, err)
	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := NewArchiveWriter(dir, "")
	require.NoError(t, err)
	defer w2.Close()
	_, err = w2.Write([]byte("second\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestArchiveWriterRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewArchiveWriter(file, "")
	assert.Error(t, err)
}
