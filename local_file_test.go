package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/storage"
)

func TestLocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.txt")
	f := writeLocal(t, p, []byte("hello world"))

	assert.Equal(t, p, f.Path())
	assert.Equal(t, "doc.txt", f.Filename())
	assert.True(t, f.Exists())

	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	data, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	assert.Equal(t, "text/plain", f.ContentType())

	require.NoError(t, f.Delete())
	assert.False(t, f.Exists())
	require.NoError(t, f.Delete(), "deleting a missing file is not an error")

	size, err = f.Size()
	assert.Error(t, err)
	assert.Equal(t, storage.UnknownSize, size)
}

func TestLocalFile_ContentTypeSniffing(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	f := writeLocal(t, filepath.Join(dir, "no-extension"), png)
	assert.Equal(t, "image/png", f.ContentType())

	f.SetContentType("application/x-override")
	assert.Equal(t, "application/x-override", f.ContentType())

	missing := storage.NewLocalFile(nil, filepath.Join(dir, "missing"))
	assert.Equal(t, "application/octet-stream", missing.ContentType())
}

func TestLocalFile_CustomFilesystem(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/data", 0o755))
	w, err := fs.Create("/data/file.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f := storage.NewLocalFile(fs, "/data/file.bin")
	size, err := f.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	_, err = os.Stat("/data/file.bin")
	assert.True(t, os.IsNotExist(err), "memfs files never reach the host")
}

func TestNewLocalFilesystem_Chmod(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	fs := storage.NewLocalFilesystem()
	m, ok := fs.(core.MetadataFS)
	require.True(t, ok)
	require.NoError(t, m.Chmod(p, 0o600))

	mtime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.Chtimes(p, mtime, mtime))

	info, err := m.Lstat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.True(t, mtime.Equal(info.ModTime()))
}

func TestNewLocalFilesystem_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	s, ok := storage.NewLocalFilesystem().(core.SymlinkFS)
	require.True(t, ok)
	require.NoError(t, s.Symlink(target, link))

	dest, err := s.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, target, dest)
}
