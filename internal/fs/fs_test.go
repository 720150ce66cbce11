package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(des))
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outputs", "model", "model.h5")

	require.NoError(t, WriteAtomic(Default, path, write("first")))
	require.NoError(t, WriteAtomic(Default, path, write("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.Equal(t, []string{"model.h5"}, entries(t, filepath.Dir(path)))
}

func TestWriteAtomic_FillError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.h5")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	boom := errors.New("boom")
	err := WriteAtomic(Default, path, func(io.Writer) error { return boom })
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	assert.Equal(t, []string{"model.h5"}, entries(t, dir))
}

func TestWriteAtomic_Faults(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"write", Fault{FailAfterBytes: 3}},
		{"sync", Fault{FailAfterBytes: -1, FailOnSync: true}},
		{"close", Fault{FailAfterBytes: -1, FailOnClose: true}},
		{"rename", Fault{FailAfterBytes: -1, FailOnRename: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "model.h5")

			ffs := NewFaultyFS(nil)
			ffs.AddRule("model.h5", tt.fault)

			err := WriteAtomic(ffs, path, write("payload"))
			require.ErrorIs(t, err, ErrInjected)

			_, err = os.Stat(path)
			assert.ErrorIs(t, err, os.ErrNotExist)
			assert.Empty(t, entries(t, dir))
		})
	}
}

func TestFaultyFS_CustomError(t *testing.T) {
	dir := t.TempDir()
	custom := errors.New("disk full")

	ffs := NewFaultyFS(nil)
	ffs.AddRule("a.bin", Fault{FailAfterBytes: 0, Err: custom})

	err := WriteAtomic(ffs, filepath.Join(dir, "a.bin"), write("x"))
	assert.ErrorIs(t, err, custom)

	require.NoError(t, WriteAtomic(ffs, filepath.Join(dir, "b.bin"), write("x")))
}

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	info, err := lfs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	newPath := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, newPath))
	require.NoError(t, lfs.Remove(newPath))

	_, err = lfs.Stat(newPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
