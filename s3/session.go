package s3

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/errs"
)

// session issues requests on behalf of a single storage operation.
type session struct {
	ctx    context.Context //nolint:containedctx // a session lives for one operation
	dialer *Dialer
}

// MkdirAll is a no-op; object storage has no directories.
func (s *session) MkdirAll(string) error {
	return nil
}

// Put uploads r as the object for target.
func (s *session) Put(target string, r io.Reader, size int64) error {
	opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(path.Ext(target))}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	_, err := s.dialer.client.PutObject(s.ctx, s.dialer.bucket, s.dialer.key(target), r, size, opts)
	return errs.PathError("put", target, translate(err))
}

// Get streams the object for target into w.
func (s *session) Get(target string, w io.Writer) error {
	obj, err := s.dialer.client.GetObject(s.ctx, s.dialer.bucket, s.dialer.key(target), minio.GetObjectOptions{})
	if err != nil {
		return errs.PathError("get", target, translate(err))
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; errors such as NoSuchKey surface on first read.
	if _, err := io.Copy(w, obj); err != nil {
		return errs.PathError("get", target, translate(err))
	}
	return nil
}

// Size returns the object's size.
func (s *session) Size(target string) (int64, error) {
	info, err := s.dialer.client.StatObject(s.ctx, s.dialer.bucket, s.dialer.key(target), minio.StatObjectOptions{})
	if err != nil {
		return 0, errs.PathError("size", target, translate(err))
	}
	return info.Size, nil
}

// Delete removes the object for target. S3 deletes are idempotent, so
// removing a missing object succeeds.
func (s *session) Delete(target string) error {
	err := s.dialer.client.RemoveObject(s.ctx, s.dialer.bucket, s.dialer.key(target), minio.RemoveObjectOptions{})
	return errs.PathError("delete", target, translate(err))
}

// Close is a no-op; the client is shared across sessions.
func (s *session) Close() error {
	return nil
}

// translate converts S3 error responses to fs errors.
func translate(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	case "AccessDenied":
		return fmt.Errorf("%w: %w", fs.ErrPermission, err)
	}

	return fmt.Errorf("s3: %w", err)
}

var _ storage.Session = (*session)(nil)
