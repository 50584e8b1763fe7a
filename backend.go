package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/jmgilman/go/storage/internal/errs"
)

// Backend stores an uploader's files on a remote server and stages them in a
// local cache beforehand.
//
// A Backend is safe for concurrent use as long as its Uploader is. Operations
// on the same path are not coordinated.
type Backend struct {
	uploader       Uploader
	dialer         Dialer
	folder         string
	url            string
	chmod          bool
	fs             billy.Filesystem
	log            logrus.FieldLogger
	metrics        *Metrics
	now            func() time.Time
	followSymlinks bool
	tempDir        string

	// retried is set the first time Cache recovers from resource exhaustion.
	// It is never reset.
	retried atomic.Bool
}

// New creates a backend that stores uploader's files through dialer.
//
// Example:
//
//	backend, err := storage.New(uploader, dialer,
//	    storage.WithFolder("/var/www/uploads"),
//	    storage.WithURL("https://files.example.com"))
func New(uploader Uploader, dialer Dialer, opts ...Option) (*Backend, error) {
	if uploader == nil {
		return nil, errs.Config("uploader is required")
	}
	if dialer == nil {
		return nil, errs.Config("dialer is required")
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Backend{
		uploader:       uploader,
		dialer:         dialer,
		folder:         options.folder,
		url:            options.url,
		chmod:          options.chmod,
		fs:             options.fs,
		log:            options.logger,
		metrics:        options.metrics,
		now:            options.now,
		followSymlinks: options.followSymlinks,
		tempDir:        options.tempDir,
	}, nil
}

// Protocol returns the name of the underlying transport.
func (b *Backend) Protocol() string {
	return b.protocol()
}

// Uploader returns the uploader the backend serves.
func (b *Backend) Uploader() Uploader {
	return b.uploader
}

// Filesystem returns the local staging filesystem.
func (b *Backend) Filesystem() billy.Filesystem {
	return b.fs
}

// Store uploads local to the uploader's store path and returns a handle on
// the stored file.
func (b *Backend) Store(ctx context.Context, local *LocalFile) (*File, error) {
	f := b.file(b.uploader.StorePath(""))
	if err := f.Store(ctx, local); err != nil {
		return nil, err
	}
	return f, nil
}

// Retrieve returns a handle on the stored file named identifier. No network
// traffic happens until the handle is used.
func (b *Backend) Retrieve(identifier string) *File {
	return b.file(b.uploader.StorePath(identifier))
}

// RetrieveFromCache returns a handle on the staged file named identifier.
func (b *Backend) RetrieveFromCache(identifier string) *LocalFile {
	p, err := expand(b.uploader.CachePath(identifier), b.uploader.Root())
	if err != nil {
		p = b.uploader.CachePath(identifier)
	}
	return &LocalFile{fs: b.fs, path: p}
}

// DeleteDir removes the empty directory at p, resolved against the uploader
// root. It does nothing when p is empty, missing, not a directory or not
// empty, so concurrent callers racing to clean up never see an error.
func (b *Backend) DeleteDir(p string) error {
	if p == "" {
		return nil
	}

	dir, err := expand(p, b.uploader.Root())
	if err != nil {
		return errs.Wrap(err, "failed to resolve "+p)
	}

	info, err := b.fs.Lstat(dir)
	if err != nil {
		if ignorableRmdirError(err) {
			return nil
		}
		return errs.Wrap(err, "failed to stat "+dir)
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := b.fs.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(err, "failed to list "+dir)
	}
	if len(entries) > 0 {
		return nil
	}

	if err := b.fs.Remove(dir); err != nil {
		if ignorableRmdirError(err) {
			return nil
		}
		return errs.Wrap(err, "failed to remove "+dir)
	}
	return nil
}

func (b *Backend) file(p string) *File {
	return &File{backend: b, path: p}
}

func (b *Backend) protocol() string {
	return b.dialer.Protocol()
}

func (b *Backend) createTemp(name string) (*TempFile, error) {
	if name == "" || name == "." || name == "/" {
		name = "storage"
	}
	if err := b.fs.MkdirAll(b.tempDir, DefaultDirectoryPermissions); err != nil {
		return nil, err
	}
	f, err := b.fs.TempFile(b.tempDir, name+"-")
	if err != nil {
		return nil, err
	}
	// billy backends disagree on whether Name is rooted, so the name is
	// rebuilt from the temp directory.
	return &TempFile{File: f, fs: b.fs, name: filepath.Join(b.tempDir, filepath.Base(f.Name()))}, nil
}

// expand resolves p against root the way a shell would: absolute paths are
// kept, relative ones are joined to root, and an empty root means the
// working directory.
func expand(p, root string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if root == "" {
		return filepath.Abs(p)
	}
	return filepath.Abs(filepath.Join(root, p))
}
