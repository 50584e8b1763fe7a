// Package ftp stores files on FTP and explicit FTPS servers.
//
// Every storage operation opens a fresh control connection, logs in,
// switches to binary mode and quits when done. Files are addressed relative
// to their parent directory after a CWD, and stored files can be given the
// uploader's permissions with SITE CHMOD.
//
//	cfg := ftp.DefaultConfig()
//	cfg.Host = "ftp.example.com"
//	cfg.Folder = "/public_html/uploads"
//	cfg.URL = "https://example.com/uploads"
//
//	backend, err := ftp.New(uploader, cfg)
package ftp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/secsy/goftp"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/errs"
)

// Protocol is the name this transport reports.
const Protocol = "ftp"

// Dialer opens FTP sessions.
type Dialer struct {
	cfg  Config
	open func(ctx context.Context) (rawConn, io.Closer, error)
}

// NewDialer validates cfg and returns a Dialer for it.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Dialer{cfg: cfg}
	d.open = d.openRaw
	return d, nil
}

// Protocol returns "ftp".
func (d *Dialer) Protocol() string {
	return Protocol
}

// Dial connects, logs in and switches to binary mode.
func (d *Dialer) Dial(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, client, err := d.open(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(conn, client, d.cfg.Passive)
}

func (d *Dialer) openRaw(ctx context.Context) (rawConn, io.Closer, error) {
	client, err := goftp.DialConfig(d.goftpConfig(ctx), d.addr())
	if err != nil {
		return nil, nil, err
	}

	conn, err := client.OpenRawConn()
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return conn, client, nil
}

func (d *Dialer) addr() string {
	return net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
}

func (d *Dialer) goftpConfig(ctx context.Context) goftp.Config {
	c := goftp.Config{
		User:               d.cfg.User,
		Password:           d.cfg.Password,
		ConnectionsPerHost: 1,
		Timeout:            timeout(ctx, d.cfg.Timeout),
		ActiveTransfers:    !d.cfg.Passive,
		Logger:             d.cfg.Trace,
	}
	if d.cfg.TLS {
		c.TLSMode = goftp.TLSExplicit
		c.TLSConfig = &tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: true, //nolint:gosec // servers commonly use self-signed certificates
		}
	}
	return c
}

// timeout shortens configured to whatever remains before ctx's deadline.
func timeout(ctx context.Context, configured time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return configured
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	if configured <= 0 || remaining < configured {
		return remaining
	}
	return configured
}

// New creates a storage backend that stores uploader's files over FTP.
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
		storage.WithFolder(cfg.Folder),
		storage.WithURL(cfg.URL),
		storage.WithChmod(cfg.Chmod),
	}, opts...)

	return storage.New(uploader, d, all...)
}

var _ storage.Dialer = (*Dialer)(nil)
