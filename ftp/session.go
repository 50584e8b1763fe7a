package ftp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/jmgilman/go/storage"
)

// rawConn is the control connection a session drives. goftp.RawConn
// satisfies it.
type rawConn interface {
	SendCommand(format string, args ...interface{}) (int, string, error)
	PrepareDataConn() (func() (net.Conn, error), error)
	ReadResponse() (int, string, error)
	Close() error
}

// session is one logged-in FTP control connection. It addresses files
// relative to the current working directory.
type session struct {
	conn    rawConn
	client  io.Closer
	passive bool
}

func newSession(conn rawConn, client io.Closer, passive bool) (*session, error) {
	s := &session{conn: conn, client: client, passive: passive}
	if _, err := s.expect("TYPE I", 200); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// expect sends a command and fails unless the reply code is one of codes.
func (s *session) expect(command string, codes ...int) (string, error) {
	code, msg, err := s.conn.SendCommand("%s", command)
	if err != nil {
		return "", err
	}
	return msg, check(command, code, msg, codes...)
}

func check(command string, code int, msg string, codes ...int) error {
	for _, c := range codes {
		if code == c {
			return nil
		}
	}
	return &ReplyError{Command: command, Code: code, Message: msg}
}

// ChangeDir sends CWD.
func (s *session) ChangeDir(dir string) error {
	_, err := s.expect("CWD "+dir, 250)
	return err
}

// MkdirAll creates dir one component at a time. Components that already
// exist are answered with 550 or 521 by most servers and are skipped.
func (s *session) MkdirAll(dir string) error {
	dir = path.Clean(dir)
	if dir == "/" || dir == "." {
		return nil
	}

	prefix := ""
	if path.IsAbs(dir) {
		prefix = "/"
	}

	current := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if current == "" {
			current = prefix + part
		} else {
			current = current + "/" + part
		}

		code, msg, err := s.conn.SendCommand("MKD %s", current)
		if err != nil {
			return err
		}
		switch code {
		case 257, 550, 521:
		default:
			return &ReplyError{Command: "MKD " + current, Code: code, Message: msg}
		}
	}
	return nil
}

// Put uploads r with STOR.
func (s *session) Put(target string, r io.Reader, _ int64) error {
	return s.transfer("STOR "+target, func(c net.Conn) error {
		_, err := io.Copy(c, r)
		return err
	})
}

// Get downloads target with RETR.
func (s *session) Get(target string, w io.Writer) error {
	return s.transfer("RETR "+target, func(c net.Conn) error {
		_, err := io.Copy(w, c)
		return err
	})
}

// transfer runs command over a fresh data connection and waits for the
// server to confirm completion.
func (s *session) transfer(command string, body func(net.Conn) error) error {
	open, err := s.conn.PrepareDataConn()
	if err != nil {
		return err
	}

	code, msg, err := s.conn.SendCommand("%s", command)
	if err == nil {
		err = check(command, code, msg, 125, 150)
	}
	if err != nil {
		s.discard(open)
		return err
	}

	dc, err := open()
	if err != nil {
		return err
	}
	berr := body(dc)
	cerr := dc.Close()

	code, msg, err = s.conn.ReadResponse()
	if err != nil {
		return err
	}
	if berr != nil {
		return berr
	}
	if cerr != nil {
		return cerr
	}
	return check(command, code, msg, 226, 250)
}

// discard releases a data connection the server refused to use. In passive
// mode it is already dialled and is closed here. An active listener is only
// released by accepting on it, which blocks until the server connects or the
// timeout passes, so it stays open.
func (s *session) discard(open func() (net.Conn, error)) {
	if !s.passive {
		return
	}
	if dc, err := open(); err == nil {
		_ = dc.Close()
	}
}

// Size sends SIZE and parses the 213 reply.
func (s *session) Size(target string) (int64, error) {
	msg, err := s.expect("SIZE "+target, 213)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(msg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ftp: malformed SIZE reply %q: %w", msg, err)
	}
	return n, nil
}

// Delete sends DELE.
func (s *session) Delete(target string) error {
	_, err := s.expect("DELE "+target, 250)
	return err
}

// Chmod sends SITE CHMOD with the octal permission bits.
func (s *session) Chmod(p string, mode os.FileMode) error {
	_, err := s.expect(fmt.Sprintf("SITE CHMOD %o %s", mode.Perm(), p), 200)
	return err
}

// Close sends QUIT and tears down the connection. A failed QUIT is not an
// error; the connection is closed regardless.
func (s *session) Close() error {
	_, _, _ = s.conn.SendCommand("QUIT")
	err := s.conn.Close()
	if s.client != nil {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var (
	_ storage.Session    = (*session)(nil)
	_ storage.DirChanger = (*session)(nil)
	_ storage.Chmoder    = (*session)(nil)
)
