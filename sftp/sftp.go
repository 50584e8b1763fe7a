// Package sftp stores files on SFTP servers.
//
// Every storage operation opens its own SSH connection and SFTP channel and
// closes both when done. Connection details beyond host and user live in the
// Config.Options map, mirroring how SSH clients are usually configured:
//
//	cfg := sftp.DefaultConfig()
//	cfg.Host = "files.example.com"
//	cfg.User = "deploy"
//	cfg.Options = map[string]interface{}{
//	    "port":        2222,
//	    "keys":        []string{"/home/deploy/.ssh/id_ed25519"},
//	    "known_hosts": "/home/deploy/.ssh/known_hosts",
//	}
//
//	backend, err := sftp.New(uploader, cfg)
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/errs"
)

// Protocol is the name this transport reports.
const Protocol = "sftp"

// Dialer opens SFTP sessions.
type Dialer struct {
	cfg  Config
	opts Options
	open func(ctx context.Context) (*sftp.Client, io.Closer, error)
}

// NewDialer validates cfg and returns a Dialer for it.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opts, err := ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}

	d := &Dialer{cfg: cfg, opts: opts}
	d.open = d.openSSH
	return d, nil
}

// Protocol returns "sftp".
func (d *Dialer) Protocol() string {
	return Protocol
}

// Dial opens an SSH connection and starts an SFTP channel on it.
func (d *Dialer) Dial(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, conn, err := d.open(ctx)
	if err != nil {
		return nil, err
	}
	return &session{client: client, conn: conn}, nil
}

func (d *Dialer) openSSH(ctx context.Context) (*sftp.Client, io.Closer, error) {
	cfg, cleanup, err := d.clientConfig()
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.opts.Port))
	timeout := time.Duration(d.opts.Timeout)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	if dl, ok := handshakeDeadline(ctx, timeout); ok {
		_ = conn.SetDeadline(dl)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, err
	}
	return client, sshClient, nil
}

// handshakeDeadline returns the earlier of now+timeout and ctx's deadline.
func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var dl time.Time
	if timeout > 0 {
		dl = time.Now().Add(timeout)
	}
	if cdl, ok := ctx.Deadline(); ok && (dl.IsZero() || cdl.Before(dl)) {
		dl = cdl
	}
	return dl, !dl.IsZero()
}

// clientConfig builds the SSH client configuration. cleanup releases the
// agent connection, if any, once the handshake is done.
func (d *Dialer) clientConfig() (*ssh.ClientConfig, func(), error) {
	cleanup := func() {}
	var auth []ssh.AuthMethod

	if d.opts.Password != "" {
		password := d.opts.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	signers, err := d.signers()
	if err != nil {
		return nil, cleanup, err
	}
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}

	if d.opts.UseAgent {
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, cleanup, errs.Config("sftp: use_agent is set but SSH_AUTH_SOCK is empty")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, cleanup, fmt.Errorf("sftp: failed to connect to ssh agent: %w", err)
		}
		cleanup = func() { _ = conn.Close() }
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // host key checking is opt-in via known_hosts
	if len(d.opts.KnownHosts) > 0 {
		hostKey, err = knownhosts.New(d.opts.KnownHosts...)
		if err != nil {
			cleanup()
			return nil, func() {}, errs.Config("sftp: failed to load known_hosts: %v", err)
		}
	}

	return &ssh.ClientConfig{
		User:            d.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         time.Duration(d.opts.Timeout),
	}, cleanup, nil
}

func (d *Dialer) signers() ([]ssh.Signer, error) {
	var pems [][]byte
	for _, path := range d.opts.Keys {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Config("sftp: failed to read key %s: %v", path, err)
		}
		pems = append(pems, data)
	}
	for _, data := range d.opts.KeyData {
		pems = append(pems, []byte(data))
	}

	signers := make([]ssh.Signer, 0, len(pems))
	for i, pem := range pems {
		var (
			signer ssh.Signer
			err    error
		)
		if d.opts.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(d.opts.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, errs.Config("sftp: failed to parse private key %d: %v", i+1, err)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

// New creates a storage backend that stores uploader's files over SFTP.
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
	}, opts...)

	return storage.New(uploader, d, all...)
}

var _ storage.Dialer = (*Dialer)(nil)
