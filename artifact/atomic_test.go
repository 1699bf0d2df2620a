package artifact

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "table.csv")

	require.NoError(t, WriteBytesAtomic(path, []byte("first\n")))
	require.NoError(t, WriteBytesAtomic(path, []byte("second\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileAtomicKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, WriteBytesAtomic(path, []byte("keep\n")))

	boom := errors.New("boom")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	_, err := ModTime(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, WriteBytesAtomic(path, []byte("x")))
	mt, err := ModTime(path)
	require.NoError(t, err)
	assert.False(t, mt.IsZero())
}
