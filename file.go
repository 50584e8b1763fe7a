package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/jmgilman/go/storage/internal/errs"
	"github.com/jmgilman/go/storage/internal/pathutil"
)

// UnknownSize is returned by Size when the remote size could not be
// determined. It is distinct from a legitimate size of zero.
const UnknownSize int64 = -1

// Operation names used in log fields and metric labels.
const (
	opStore  = "store"
	opFetch  = "fetch"
	opSize   = "size"
	opDelete = "delete"
)

// File is a handle on one remote file.
//
// A File is cheap to construct and does not touch the network until one of
// its context-taking methods is called. Each of those opens its own session
// and closes it before returning.
type File struct {
	backend     *Backend
	path        string
	contentType string
}

// Path returns the path of the file relative to the backend folder.
func (f *File) Path() string {
	return f.path
}

// RemotePath returns the full path of the file on the remote server.
func (f *File) RemotePath() string {
	return pathutil.Join(f.backend.folder, f.path)
}

// URL returns the public URL of the file.
func (f *File) URL() string {
	return pathutil.URL(f.backend.url, f.path)
}

// Filename returns the last segment of the URL.
func (f *File) Filename() string {
	return pathutil.Base(f.URL())
}

// SetContentType overrides the inferred content type.
func (f *File) SetContentType(contentType string) {
	f.contentType = contentType
}

// ContentType returns the explicit content type if set, else the type
// registered for the path extension, else application/octet-stream.
func (f *File) ContentType() string {
	if f.contentType != "" {
		return f.contentType
	}
	if ct := typeByExtension(f.path); ct != "" {
		return ct
	}
	return defaultContentType
}

// Store uploads local to the remote path, creating parent directories as
// needed. When the backend has chmod enabled and the session supports it,
// the uploader's permissions are applied afterwards.
func (f *File) Store(ctx context.Context, local *LocalFile) error {
	r, err := local.Open()
	if err != nil {
		return errs.Wrap(err, fmt.Sprintf("failed to open %s", local.Path()))
	}
	defer func() { _ = r.Close() }()

	size, err := local.Size()
	if err != nil {
		size = UnknownSize
	}

	return f.withSession(ctx, opStore, func(s Session) error {
		remote := f.RemotePath()
		dir := pathutil.Dir(remote)
		if err := s.MkdirAll(dir); err != nil {
			return errs.Wrap(err, fmt.Sprintf("failed to create %s", dir))
		}

		target, err := f.address(s)
		if err != nil {
			return err
		}

		if err := s.Put(target, r, size); err != nil {
			return errs.Wrap(err, fmt.Sprintf("failed to store %s", remote))
		}

		if !f.backend.chmod {
			return nil
		}
		c, ok := s.(Chmoder)
		if !ok {
			return nil
		}
		if err := c.Chmod(remote, f.backend.uploader.Permissions()); err != nil {
			return errs.Wrap(err, fmt.Sprintf("failed to chmod %s", remote))
		}
		return nil
	})
}

// FetchToLocalTemp downloads the file into a new local temporary file and
// returns it positioned at offset zero. Closing the TempFile removes it.
func (f *File) FetchToLocalTemp(ctx context.Context) (*TempFile, error) {
	tmp, err := f.backend.createTemp(f.Filename())
	if err != nil {
		return nil, errs.Wrap(err, "failed to create temporary file")
	}

	err = f.withSession(ctx, opFetch, func(s Session) error {
		target, err := f.address(s)
		if err != nil {
			return err
		}
		if err := s.Get(target, tmp); err != nil {
			return errs.Wrap(err, fmt.Sprintf("failed to fetch %s", f.RemotePath()))
		}
		return nil
	})
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = tmp.Close()
		return nil, err
	}

	return tmp, nil
}

// Read returns the contents of the remote file.
func (f *File) Read(ctx context.Context) ([]byte, error) {
	tmp, err := f.FetchToLocalTemp(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tmp.Close() }()

	return io.ReadAll(tmp)
}

// Size returns the remote size in bytes, or UnknownSize and an error.
func (f *File) Size(ctx context.Context) (int64, error) {
	size := UnknownSize
	err := f.withSession(ctx, opSize, func(s Session) error {
		target, err := f.address(s)
		if err != nil {
			return err
		}
		n, err := s.Size(target)
		if err != nil {
			return errs.Wrap(err, fmt.Sprintf("failed to stat %s", f.RemotePath()))
		}
		size = n
		return nil
	})
	if err != nil {
		return UnknownSize, err
	}
	return size, nil
}

// Exists reports whether the remote file exists. Any failure to determine
// the size, including a network failure, is reported as false.
func (f *File) Exists(ctx context.Context) bool {
	size, err := f.Size(ctx)
	return err == nil && size != UnknownSize
}

// Delete removes the remote file. Failures are logged and otherwise ignored.
func (f *File) Delete(ctx context.Context) {
	err := f.withSession(ctx, opDelete, func(s Session) error {
		target, err := f.address(s)
		if err != nil {
			return err
		}
		return s.Delete(target)
	})
	if err != nil {
		f.logger(opDelete).WithError(err).Debug("delete failed")
	}
}

// withSession dials a session, runs fn and always closes the session.
// A close failure is only returned when fn succeeded.
func (f *File) withSession(ctx context.Context, op string, fn func(Session) error) (err error) {
	b := f.backend
	log := f.logger(op)
	start := time.Now()
	defer func() { b.metrics.observe(b.protocol(), op, start, err) }()

	s, err := b.dialer.Dial(ctx)
	if err != nil {
		return errs.Dial(b.protocol(), err)
	}
	log.Debug("session opened")

	defer func() {
		cerr := s.Close()
		if cerr != nil {
			log.WithError(cerr).Debug("failed to close session")
			if err == nil {
				err = errs.Wrap(cerr, "failed to close session")
			}
		}
		log.Debug("session closed")
	}()

	return fn(s)
}

// address returns the name the session should use for the file: the bare
// filename after changing into the parent directory for directory-addressed
// sessions, the full remote path otherwise.
func (f *File) address(s Session) (string, error) {
	remote := f.RemotePath()
	dc, ok := s.(DirChanger)
	if !ok {
		return remote, nil
	}
	dir := pathutil.Dir(remote)
	if err := dc.ChangeDir(dir); err != nil {
		return "", errs.Wrap(err, fmt.Sprintf("failed to change directory to %s", dir))
	}
	return path.Base(remote), nil
}

func (f *File) logger(op string) logrus.FieldLogger {
	return f.backend.log.WithFields(logrus.Fields{
		"protocol":  f.backend.protocol(),
		"path":      f.RemotePath(),
		"operation": op,
	})
}

// TempFile is a local temporary file that is removed when closed.
type TempFile struct {
	billy.File
	fs   billy.Filesystem
	name string
}

// Name returns the full path of the file in the staging filesystem.
func (t *TempFile) Name() string {
	return t.name
}

// Close closes the file and removes it.
func (t *TempFile) Close() error {
	cerr := t.File.Close()
	if err := t.fs.Remove(t.Name()); err != nil && cerr == nil {
		return err
	}
	return cerr
}
