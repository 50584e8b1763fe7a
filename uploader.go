package storage

import (
	"os"
	"path"
	"time"

	"github.com/jmgilman/go/storage/internal/cachekey"
)

const (
	// DefaultPermissions is applied to files when an uploader reports zero.
	DefaultPermissions os.FileMode = 0o644

	// DefaultDirectoryPermissions is applied to directories when an uploader
	// reports zero.
	DefaultDirectoryPermissions os.FileMode = 0o755
)

// Uploader describes where the files of one upload live.
//
// An empty identifier refers to the file currently being processed. Paths
// returned by CachePath and CacheDir are resolved against Root when they are
// relative; StorePath is relative to the backend folder.
type Uploader interface {
	StorePath(identifier string) string
	CachePath(identifier string) string
	CacheDir() string
	Root() string
	Permissions() os.FileMode
	DirectoryPermissions() os.FileMode
}

// DefaultUploader is a plain Uploader backed by struct fields.
//
// Stored files live at StoreDir/<identifier>; cached files live at
// CacheDirectory/<CacheID>/<Filename>, so each cache id owns one staging
// entry that CleanCache can date. DefaultUploader is not safe for concurrent
// use when CacheID must be generated.
type DefaultUploader struct {
	// RootDir anchors relative cache paths. Empty means the working directory.
	RootDir string

	// StoreDir is the remote directory, relative to the backend folder.
	StoreDir string

	// CacheDirectory is the local staging directory.
	CacheDirectory string

	// Filename is the name of the current file.
	Filename string

	// CacheID identifies the current staging entry. Generated on first use
	// when empty.
	CacheID string

	// FileMode is applied to cached files. Zero means DefaultPermissions.
	FileMode os.FileMode

	// DirMode is applied to created cache directories. Zero means
	// DefaultDirectoryPermissions.
	DirMode os.FileMode
}

// StorePath returns the remote path of identifier, or of the current file
// when identifier is empty.
func (u *DefaultUploader) StorePath(identifier string) string {
	if identifier == "" {
		identifier = u.Filename
	}
	return path.Join(u.StoreDir, identifier)
}

// CachePath returns the staging path of identifier. Identifiers returned by
// CacheName are accepted as-is; an empty identifier names the current file
// inside a fresh cache id.
func (u *DefaultUploader) CachePath(identifier string) string {
	if identifier == "" {
		identifier = u.CacheName()
	}
	return path.Join(u.CacheDirectory, identifier)
}

// CacheName returns "<cache id>/<filename>" for the current file.
func (u *DefaultUploader) CacheName() string {
	if u.CacheID == "" {
		u.CacheID = NewCacheID(time.Now())
	}
	return path.Join(u.CacheID, u.Filename)
}

// CacheDir returns the staging directory.
func (u *DefaultUploader) CacheDir() string {
	return u.CacheDirectory
}

// Root returns the directory relative cache paths are resolved against.
func (u *DefaultUploader) Root() string {
	return u.RootDir
}

// Permissions returns the mode applied to cached and stored files.
func (u *DefaultUploader) Permissions() os.FileMode {
	if u.FileMode == 0 {
		return DefaultPermissions
	}
	return u.FileMode
}

// DirectoryPermissions returns the mode applied to created directories.
func (u *DefaultUploader) DirectoryPermissions() os.FileMode {
	if u.DirMode == 0 {
		return DefaultDirectoryPermissions
	}
	return u.DirMode
}

// NewCacheID returns a staging entry name stamped with now.
func NewCacheID(now time.Time) string {
	return cachekey.New(now)
}

var _ Uploader = (*DefaultUploader)(nil)
