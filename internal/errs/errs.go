// Package errs provides error handling utilities shared by the storage
// transports.
package errs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"syscall"

	platformerrors "github.com/jmgilman/go/errors"
)

// Classify maps an error to a platform error type.
// The returned error wraps err, so errors.Is and errors.As still see the
// original chain. If err is nil, returns nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	// Already classified
	var pe platformerrors.PlatformError
	if errors.As(err, &pe) {
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return platformerrors.Wrap(err, platformerrors.CodeNotFound, "not found")
	case errors.Is(err, fs.ErrPermission):
		return platformerrors.Wrap(err, platformerrors.CodeForbidden, "permission denied")
	case errors.Is(err, fs.ErrExist):
		return platformerrors.Wrap(err, platformerrors.CodeAlreadyExists, "already exists")
	case isTimeout(err):
		return platformerrors.Wrap(err, platformerrors.CodeTimeout, "operation timed out")
	case isNetwork(err):
		return platformerrors.Wrap(err, platformerrors.CodeNetwork, "network failure")
	}

	return platformerrors.Wrap(err, platformerrors.CodeExecutionFailed, "operation failed")
}

// Wrap classifies err and prefixes it with context.
// If err is nil, returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, Classify(err))
}

// Dial wraps a failure to open a transport session. Dial failures are always
// network errors and therefore retryable.
func Dial(protocol string, err error) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrapf(err, platformerrors.CodeNetwork, "failed to open %s session", protocol)
}

// Config returns an invalid configuration error.
func Config(format string, args ...interface{}) error {
	return platformerrors.Newf(platformerrors.CodeInvalidConfig, format, args...)
}

// PathError wraps an error in a fs.PathError for the given operation and path.
// If the error is nil, returns nil.
func PathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	ne := netError(err)
	return ne != nil && ne.Timeout()
}

func isNetwork(err error) bool {
	return netError(err) != nil
}

// netError returns the network error in err's chain. A bare syscall.Errno
// also satisfies net.Error, so errno-backed errors only count when a
// network operation wraps them.
func netError(err error) net.Error {
	var oe *net.OpError
	if errors.As(err, &oe) {
		return oe
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return de
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne
	}
	return nil
}
