package storage

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	fsbilly "github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
)

const defaultContentType = "application/octet-stream"

// localFS is the default staging filesystem. It is rooted at "/" so every
// path handed to it is an absolute host path, which lets the metadata calls
// go straight to the operating system.
type localFS struct {
	billy.Filesystem
}

// NewLocalFilesystem returns a billy filesystem over the host filesystem,
// rooted at "/". Besides billy.Filesystem it implements core.MetadataFS and
// core.SymlinkFS.
func NewLocalFilesystem() billy.Filesystem {
	return &localFS{Filesystem: fsbilly.NewLocal().Unwrap()}
}

// Chmod changes the mode of the named file.
func (l *localFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// Chtimes changes the access and modification times of the named file.
func (l *localFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

var (
	_ core.MetadataFS = (*localFS)(nil)
	_ core.SymlinkFS  = (*localFS)(nil)
)

// LocalFile is a handle on a file in the local staging filesystem.
type LocalFile struct {
	fs          billy.Filesystem
	path        string
	contentType string
}

// NewLocalFile returns a handle on path. A nil fs means NewLocalFilesystem().
// Relative paths are made absolute against the working directory.
func NewLocalFile(fs billy.Filesystem, path string) *LocalFile {
	if fs == nil {
		fs = NewLocalFilesystem()
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &LocalFile{fs: fs, path: path}
}

// Path returns the absolute path of the file.
func (f *LocalFile) Path() string {
	return f.path
}

// Filename returns the last element of the path.
func (f *LocalFile) Filename() string {
	return filepath.Base(f.path)
}

// Size returns the size of the file in bytes.
func (f *LocalFile) Size() (int64, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return UnknownSize, err
	}
	return info.Size(), nil
}

// Exists reports whether the file exists.
func (f *LocalFile) Exists() bool {
	_, err := f.fs.Stat(f.path)
	return err == nil
}

// Open opens the file for reading.
func (f *LocalFile) Open() (billy.File, error) {
	return f.fs.Open(f.path)
}

// Read returns the whole contents of the file.
func (f *LocalFile) Read() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Delete removes the file. A file that is already gone is not an error.
func (f *LocalFile) Delete() error {
	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SetContentType overrides the inferred content type.
func (f *LocalFile) SetContentType(contentType string) {
	f.contentType = contentType
}

// ContentType returns the explicit content type if set, else the type
// registered for the file extension, else the type detected from the file
// contents.
func (f *LocalFile) ContentType() string {
	if f.contentType != "" {
		return f.contentType
	}
	if ct := typeByExtension(f.path); ct != "" {
		return ct
	}

	r, err := f.Open()
	if err != nil {
		return defaultContentType
	}
	defer func() { _ = r.Close() }()

	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return defaultContentType
	}
	return stripParams(mt.String())
}

func typeByExtension(p string) string {
	return stripParams(mime.TypeByExtension(filepath.Ext(p)))
}

func stripParams(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.TrimSpace(ct)
}
