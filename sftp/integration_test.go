package sftp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jmgilman/go/storage"
)

// setupTestSFTP starts an OpenSSH server with a writable upload directory
// for user foo.
func setupTestSFTP(t *testing.T) Config {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "atmoz/sftp:latest",
		ExposedPorts: []string{"22/tcp"},
		Cmd:          []string{"foo:pass:::upload"},
		WaitingFor:   wait.ForListeningPort("22/tcp"),
	}

	sftpC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start SFTP container")
	t.Cleanup(func() { _ = sftpC.Terminate(ctx) })

	host, err := sftpC.Host(ctx)
	require.NoError(t, err)
	port, err := sftpC.MappedPort(ctx, "22/tcp")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.User = "foo"
	cfg.Folder = "/upload"
	cfg.URL = "https://files.example.com"
	cfg.Options = map[string]interface{}{
		"port":     port.Int(),
		"password": "pass",
		"timeout":  "10s",
	}
	return cfg
}

func TestIntegration_Backend(t *testing.T) {
	cfg := setupTestSFTP(t)
	ctx := context.Background()
	root := t.TempDir()

	u := &storage.DefaultUploader{
		RootDir:        root,
		StoreDir:       "images/2020",
		CacheDirectory: "cache",
		Filename:       "photo.jpg",
	}
	backend, err := New(u, cfg, storage.WithTempDir(root))
	require.NoError(t, err)

	src := filepath.Join(root, "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg bytes"), 0o644))

	f, err := backend.Store(ctx, storage.NewLocalFile(nil, src))
	require.NoError(t, err)
	assert.Equal(t, "/upload/images/2020/photo.jpg", f.RemotePath())
	assert.Equal(t, "https://files.example.com/images/2020/photo.jpg", f.URL())

	data, err := backend.Retrieve("").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg bytes"), data)

	assert.True(t, f.Exists(ctx))
	f.Delete(ctx)
	assert.False(t, f.Exists(ctx))
}

func TestIntegration_BadPassword(t *testing.T) {
	cfg := setupTestSFTP(t)
	cfg.Options["password"] = "wrong"

	backend, err := New(&storage.DefaultUploader{Filename: "x"}, cfg)
	require.NoError(t, err)

	_, err = backend.Retrieve("").Size(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open sftp session")
}
