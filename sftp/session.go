package sftp

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/pkg/sftp"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/errs"
)

// session is one SFTP channel and the SSH connection carrying it.
// It addresses files by full path.
type session struct {
	client *sftp.Client
	conn   io.Closer
}

// MkdirAll creates dir and any missing parents.
func (s *session) MkdirAll(dir string) error {
	return errs.PathError("mkdir", dir, s.client.MkdirAll(dir))
}

// Put streams r into target, truncating any existing file.
func (s *session) Put(target string, r io.Reader, _ int64) error {
	f, err := s.client.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errs.PathError("put", target, err)
	}

	if _, err := f.ReadFrom(r); err != nil {
		_ = f.Close()
		return errs.PathError("put", target, err)
	}
	return errs.PathError("put", target, f.Close())
}

// Get streams target into w.
func (s *session) Get(target string, w io.Writer) error {
	f, err := s.client.Open(target)
	if err != nil {
		return errs.PathError("get", target, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return errs.PathError("get", target, err)
	}
	return nil
}

// Size stats target.
func (s *session) Size(target string) (int64, error) {
	info, err := s.client.Stat(target)
	if err != nil {
		return 0, errs.PathError("size", target, err)
	}
	return info.Size(), nil
}

// Delete removes target.
func (s *session) Delete(target string) error {
	return errs.PathError("delete", target, s.client.Remove(target))
}

// Close closes the SFTP channel, then the SSH connection.
func (s *session) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ storage.Session = (*session)(nil)
