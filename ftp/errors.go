package ftp

import (
	"fmt"
	"io/fs"
)

// ReplyError is an unexpected reply from the FTP server.
type ReplyError struct {
	Command string
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("ftp: %s: %d %s", e.Command, e.Code, e.Message)
}

// Unwrap maps reply codes onto fs errors: 550 (file unavailable) is
// fs.ErrNotExist and 530/532 (not logged in) is fs.ErrPermission.
func (e *ReplyError) Unwrap() error {
	switch e.Code {
	case 550:
		return fs.ErrNotExist
	case 530, 532:
		return fs.ErrPermission
	}
	return nil
}

// Temporary reports whether the reply is a transient (4xx) failure.
func (e *ReplyError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}
