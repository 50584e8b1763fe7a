package storage

import (
	"context"
	"io"
	"os"
)

// Dialer opens sessions against a remote server.
//
// Dial must return a fully authenticated Session or an error. Not-found
// conditions reported by sessions must satisfy errors.Is(err, fs.ErrNotExist).
type Dialer interface {
	// Dial opens a new session. ctx bounds connection establishment.
	Dial(ctx context.Context) (Session, error)

	// Protocol returns a short name for the transport, such as "ftp".
	// It is used in log fields, metric labels and error messages.
	Protocol() string
}

// Session is a single authenticated connection to a remote server.
//
// Paths passed to a Session are either absolute remote paths or, after a
// successful DirChanger.ChangeDir, bare names relative to the current
// directory.
type Session interface {
	// MkdirAll creates dir and any missing parents. Existing directories
	// are not an error.
	MkdirAll(dir string) error

	// Put uploads size bytes read from r to target, replacing any existing
	// file. size may be -1 when unknown.
	Put(target string, r io.Reader, size int64) error

	// Get streams the contents of target into w.
	Get(target string, w io.Writer) error

	// Size returns the size of target in bytes.
	Size(target string) (int64, error)

	// Delete removes target.
	Delete(target string) error

	// Close terminates the session and releases its connection.
	Close() error
}

// DirChanger is implemented by sessions that address files relative to a
// current working directory, such as FTP.
type DirChanger interface {
	ChangeDir(dir string) error
}

// Chmoder is implemented by sessions that can change remote permissions.
type Chmoder interface {
	Chmod(path string, mode os.FileMode) error
}
