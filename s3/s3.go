// Package s3 stores files in S3-compatible object storage.
//
// Object storage has no directories, connections or permissions, so sessions
// are thin views over a shared client: MkdirAll and Close do nothing and the
// backend never changes directory. Stored paths become object keys under
// Config.Prefix.
//
//	cfg := s3.DefaultConfig()
//	cfg.Endpoint = "s3.example.com"
//	cfg.Bucket = "uploads"
//	cfg.AccessKey, cfg.SecretKey = key, secret
//
//	backend, err := s3.New(uploader, cfg)
package s3

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/errs"
	"github.com/jmgilman/go/storage/internal/pathutil"
)

// Protocol is the name this transport reports.
const Protocol = "s3"

// Dialer hands out sessions bound to one bucket.
type Dialer struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewDialer validates cfg and creates the client.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, errs.Config("s3: failed to create client: %v", err)
		}
	}

	return &Dialer{
		client: client,
		bucket: cfg.Bucket,
		prefix: pathutil.NormalizePrefix(cfg.Prefix),
	}, nil
}

// Protocol returns "s3".
func (d *Dialer) Protocol() string {
	return Protocol
}

// Dial returns a session whose requests are bound to ctx.
func (d *Dialer) Dial(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{ctx: ctx, dialer: d}, nil
}

// key maps a remote path to an object key.
func (d *Dialer) key(p string) string {
	return pathutil.JoinKey(d.prefix, p)
}

// New creates a storage backend that stores uploader's files in a bucket.
// Options are applied after the ones derived from cfg, so they take
// precedence.
func New(uploader storage.Uploader, cfg Config, opts ...storage.Option) (*storage.Backend, error) {
	d, err := NewDialer(cfg)
	if err != nil {
		return nil, errs.Wrap(err, "invalid config")
	}
	return newBackend(uploader, cfg, d, opts...)
}

func newBackend(uploader storage.Uploader, cfg Config, d storage.Dialer, opts ...storage.Option) (*storage.Backend, error) {
	all := append([]storage.Option{
		storage.WithFolder("/"),
		storage.WithURL(cfg.URL),
	}, opts...)

	return storage.New(uploader, d, all...)
}

var _ storage.Dialer = (*Dialer)(nil)
