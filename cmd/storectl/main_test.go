package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/config"
	"github.com/jmgilman/go/storage/internal/testutil"
)

type harness struct {
	root   string
	config string
	dialer *testutil.MemoryDialer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tmp"), 0o755))

	cfgPath := filepath.Join(root, "storectl.yaml")
	content := fmt.Sprintf(`
uploader:
  root: %s
  store_dir: uploads
  cache_dir: cache
temp_dir: %s
`, root, filepath.Join(root, "tmp"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	return &harness{
		root:   root,
		config: cfgPath,
		dialer: testutil.NewMemoryDialer("memory", testutil.PathAddressed),
	}
}

func (h *harness) factory(cfg *config.Config, u storage.Uploader, opts ...storage.Option) (*storage.Backend, error) {
	all := append([]storage.Option{
		storage.WithFolder("/srv"),
		storage.WithURL("https://cdn.example.com"),
		storage.WithTempDir(cfg.TempDir),
	}, opts...)
	return storage.New(u, h.dialer, all...)
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newApp(&stdout, &stderr, h.factory).rootCmd()
	root.SetArgs(append([]string{"--config", h.config}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (h *harness) writeLocal(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(h.root, "in", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestStore(t *testing.T) {
	h := newHarness(t)
	src := h.writeLocal(t, "notes.txt", "hello")

	stdout, stderr, err := h.run(t, "store", src)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/notes.txt\n", stdout)
	assert.Contains(t, stderr, "file stored")

	data, ok := h.dialer.File("/srv/uploads/notes.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
	assert.NoFileExists(t, src, "the source is moved into the cache")
	assert.Equal(t, 0, h.dialer.Live())
}

func TestCat(t *testing.T) {
	h := newHarness(t)
	h.dialer.Seed("/srv/uploads/notes.txt", []byte("hello"))

	stdout, _, err := h.run(t, "cat", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", stdout)

	_, _, err = h.run(t, "cat", "missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStat(t *testing.T) {
	h := newHarness(t)
	h.dialer.Seed("/srv/uploads/notes.txt", []byte("hello"))

	stdout, _, err := h.run(t, "stat", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, stdout, "path:         /srv/uploads/notes.txt\n")
	assert.Contains(t, stdout, "size:         5\n")
	assert.Contains(t, stdout, "content type: text/plain\n")
	assert.Contains(t, stdout, "url:          https://cdn.example.com/uploads/notes.txt\n")
}

func TestFetch(t *testing.T) {
	h := newHarness(t)
	h.dialer.Seed("/srv/uploads/notes.txt", []byte("hello"))
	dest := filepath.Join(h.root, "out.txt")

	_, _, err := h.run(t, "fetch", "notes.txt", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	entries, err := os.ReadDir(filepath.Join(h.root, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "the download temp file is removed")
}

func TestRm(t *testing.T) {
	h := newHarness(t)
	h.dialer.Seed("/srv/uploads/notes.txt", []byte("hello"))

	_, _, err := h.run(t, "rm", "notes.txt")
	require.NoError(t, err)
	_, ok := h.dialer.File("/srv/uploads/notes.txt")
	assert.False(t, ok)

	_, _, err = h.run(t, "rm", "notes.txt")
	assert.NoError(t, err, "deleting a missing file is not an error")
}

func TestCache(t *testing.T) {
	h := newHarness(t)
	src := h.writeLocal(t, "notes.txt", "hello")

	stdout, _, err := h.run(t, "cache", src)
	require.NoError(t, err)

	cached := stdout[:len(stdout)-1]
	assert.Equal(t, filepath.Join(h.root, "cache"), filepath.Dir(filepath.Dir(cached)))
	assert.Equal(t, "notes.txt", filepath.Base(cached))
	assert.FileExists(t, cached)
	assert.NoFileExists(t, src)
	assert.Equal(t, 0, h.dialer.Opened(), "caching never touches the remote")
}

func TestCleanCache(t *testing.T) {
	h := newHarness(t)
	cacheDir := filepath.Join(h.root, "cache")
	stale := filepath.Join(cacheDir, "1000-1-0001")
	fresh := filepath.Join(cacheDir, fmt.Sprintf("%d-1-0002", time.Now().Unix()))
	foreign := filepath.Join(cacheDir, "keep-me")
	for _, dir := range []string{stale, fresh, foreign} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	_, _, err := h.run(t, "clean-cache", "--older-than", "1m")
	require.NoError(t, err)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, foreign)
}

func TestRmdir(t *testing.T) {
	h := newHarness(t)
	empty := filepath.Join(h.root, "cache", "1000-1-0001")
	full := filepath.Join(h.root, "cache", "1000-1-0002")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, "f"), nil, 0o644))

	_, _, err := h.run(t, "rmdir", empty)
	require.NoError(t, err)
	assert.NoDirExists(t, empty)

	_, _, err = h.run(t, "rmdir", full)
	require.NoError(t, err)
	assert.DirExists(t, full)
}

func TestLogFileAndMetrics(t *testing.T) {
	h := newHarness(t)
	src := h.writeLocal(t, "notes.txt", "hello")
	logFile := filepath.Join(h.root, "logs", "storectl.log")
	metricsFile := filepath.Join(h.root, "storectl.prom")

	_, stderr, err := h.run(t, "--verbose", "--log-file", logFile, "--metrics-file", metricsFile, "store", src)
	require.NoError(t, err)

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "file stored")
	assert.Contains(t, string(logged), "level=debug")
	assert.Equal(t, stderr, string(logged))

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `storage_operations_total{operation="store",outcome="success",protocol="memory"} 1`)
}

func TestInvalidProtocol(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newApp(&stdout, &stderr, defaultBackend).rootCmd()
	root.SetArgs([]string{"--protocol", "gopher", "cat", "notes.txt"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown protocol")
}

func TestHelpWarnsAboutMove(t *testing.T) {
	for _, name := range []string{"store", "cache"} {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			root := newApp(&stdout, &stderr, defaultBackend).rootCmd()
			cmd, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Contains(t, cmd.Long, "Copy it first")
		})
	}
}

func TestArgs(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "store")
	assert.Error(t, err)
	_, _, err = h.run(t, "fetch", "a", "b", "c")
	assert.Error(t, err)
}
