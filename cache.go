package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jmgilman/go/fs/core"
	"github.com/sirupsen/logrus"

	"github.com/jmgilman/go/storage/internal/cachekey"
	"github.com/jmgilman/go/storage/internal/errs"
)

// ReclaimThreshold is the age beyond which staging entries are swept when
// Cache runs out of space.
const ReclaimThreshold = 10 * time.Minute

// Cache moves local into the uploader's cache path and returns a handle on
// the staged file.
//
// If the move fails with ENOSPC or EMLINK, entries older than
// ReclaimThreshold are removed and the move is retried once. Only the first
// such failure over the lifetime of the backend is retried; any later one is
// returned unchanged.
func (b *Backend) Cache(local *LocalFile) (*LocalFile, error) {
	dst, err := expand(b.uploader.CachePath(""), b.uploader.Root())
	if err != nil {
		return nil, errs.Wrap(err, "failed to resolve cache path")
	}

	log := b.log.WithFields(logrus.Fields{
		"protocol":  b.protocol(),
		"path":      dst,
		"operation": "cache",
	})

	err = b.move(local.Path(), dst)
	if isExhausted(err) && b.retried.CompareAndSwap(false, true) {
		log.WithError(err).Info("staging cache exhausted, reclaiming space")
		b.metrics.reclaim(b.protocol())
		if cerr := b.CleanCache(ReclaimThreshold); cerr != nil {
			log.WithError(cerr).Warn("failed to clean staging cache")
		}
		err = b.move(local.Path(), dst)
	}

	switch {
	case err == nil:
	case isExhausted(err):
		return nil, err
	default:
		return nil, errs.Wrap(err, fmt.Sprintf("failed to cache %s", local.Path()))
	}

	log.Debug("file cached")
	return &LocalFile{fs: b.fs, path: dst, contentType: local.contentType}, nil
}

// CleanCache removes every staging entry whose name carries a timestamp
// strictly older than threshold. Entries with unparsable names are left
// alone. A missing cache directory is not an error, and failures to remove
// individual entries are logged without stopping the sweep.
func (b *Backend) CleanCache(threshold time.Duration) error {
	dir, err := expand(b.uploader.CacheDir(), b.uploader.Root())
	if err != nil {
		return errs.Wrap(err, "failed to resolve cache directory")
	}

	log := b.log.WithFields(logrus.Fields{
		"protocol":  b.protocol(),
		"path":      dir,
		"operation": "clean_cache",
	})

	entries, err := b.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(err, fmt.Sprintf("failed to list %s", dir))
	}

	cutoff := b.now().Add(-threshold)
	removed := 0
	for _, entry := range entries {
		ts, ok := cachekey.Parse(entry.Name())
		if !ok || !ts.Before(cutoff) {
			continue
		}

		p := filepath.Join(dir, entry.Name())
		if err := b.removeAll(p); err != nil {
			log.WithError(err).WithField("entry", entry.Name()).Warn("failed to remove cache entry")
			continue
		}
		removed++
		b.metrics.entryRemoved(b.protocol())
	}

	log.WithFields(logrus.Fields{
		"threshold": threshold.String(),
		"removed":   removed,
	}).Info("staging cache cleaned")

	return nil
}

// move renames src to dst, creating dst's parent and replacing any existing
// file. Renames across devices fall back to copy and remove. The uploader's
// permissions are applied to dst when the filesystem supports chmod.
func (b *Backend) move(src, dst string) error {
	if err := b.fs.MkdirAll(filepath.Dir(dst), b.uploader.DirectoryPermissions()); err != nil {
		return err
	}

	if src == dst {
		return b.chmodLocal(dst)
	}

	if b.followSymlinks {
		info, err := b.fs.Lstat(src)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if err := b.copyAndRemove(src, dst); err != nil {
				return err
			}
			return b.chmodLocal(dst)
		}
	}

	if err := b.fs.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return err
		}
		if err := b.copyAndRemove(src, dst); err != nil {
			return err
		}
	}

	return b.chmodLocal(dst)
}

func (b *Backend) copyAndRemove(src, dst string) error {
	in, err := b.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := b.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, b.uploader.Permissions())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return b.fs.Remove(src)
}

func (b *Backend) chmodLocal(p string) error {
	c, ok := b.fs.(core.MetadataFS)
	if !ok {
		return nil
	}
	return c.Chmod(p, b.uploader.Permissions())
}

// removeAll recursively removes path. Symlinks are removed, not followed.
// A path that no longer exists is not an error.
func (b *Backend) removeAll(path string) error {
	info, err := b.fs.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Already gone
		}
		return err
	}

	if !info.IsDir() {
		return ignoreNotExist(b.fs.Remove(path))
	}

	entries, err := b.fs.ReadDir(path)
	if err != nil {
		return ignoreNotExist(err)
	}

	for _, entry := range entries {
		if err := b.removeAll(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}

	return ignoreNotExist(b.fs.Remove(path))
}

func isExhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMLINK)
}

func ignorableRmdirError(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.ENOTEMPTY) ||
		errors.Is(err, syscall.EEXIST)
}

func ignoreNotExist(err error) error {
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
