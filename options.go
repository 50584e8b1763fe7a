package storage

import (
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"
)

// Option configures a Backend.
type Option func(*options)

type options struct {
	folder         string
	url            string
	chmod          bool
	fs             billy.Filesystem
	logger         logrus.FieldLogger
	metrics        *Metrics
	now            func() time.Time
	followSymlinks bool
	tempDir        string
}

func defaultOptions() *options {
	return &options{
		folder:  "/",
		url:     "http://localhost",
		fs:      NewLocalFilesystem(),
		logger:  discardLogger(),
		now:     time.Now,
		tempDir: os.TempDir(),
	}
}

// WithFolder sets the remote directory every stored path is relative to.
// Defaults to "/".
func WithFolder(folder string) Option {
	return func(opts *options) {
		opts.folder = folder
	}
}

// WithURL sets the public base URL files are served from.
// Defaults to "http://localhost".
//
// Example:
//
//	storage.New(uploader, dialer, storage.WithURL("https://cdn.example.com"))
func WithURL(url string) Option {
	return func(opts *options) {
		opts.url = url
	}
}

// WithChmod applies the uploader's permissions to stored files when the
// session supports it.
func WithChmod(enabled bool) Option {
	return func(opts *options) {
		opts.chmod = enabled
	}
}

// WithFilesystem sets the billy filesystem used for the local staging cache
// and temporary downloads. Paths are absolute, so the filesystem should be
// rooted at "/".
//
// If not provided, defaults to NewLocalFilesystem().
//
// Example:
//
//	backend, err := storage.New(uploader, dialer,
//	    storage.WithFilesystem(osfs.New("/")))
func WithFilesystem(fs billy.Filesystem) Option {
	return func(opts *options) {
		if fs != nil {
			opts.fs = fs
		}
	}
}

// WithLogger sets the logger. Defaults to a logger that discards everything.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithMetrics records operation outcomes to m.
func WithMetrics(m *Metrics) Option {
	return func(opts *options) {
		opts.metrics = m
	}
}

// WithClock overrides the clock CleanCache compares entry timestamps with.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		if now != nil {
			opts.now = now
		}
	}
}

// WithFollowSymlinks makes Cache replace a symlinked source with a copy of
// its target instead of moving the link itself.
func WithFollowSymlinks(follow bool) Option {
	return func(opts *options) {
		opts.followSymlinks = follow
	}
}

// WithTempDir sets the directory FetchToLocalTemp creates files in.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(opts *options) {
		opts.tempDir = dir
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
