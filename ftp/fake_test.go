package ftp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"sync"
)

// fakeServer is a tiny in-process FTP server state machine that speaks
// through the rawConn interface. Data connections are passive-style
// net.Pipe pairs, dialled as soon as they are prepared.
type fakeServer struct {
	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	commands  []string
	overrides map[string]int
	dials     int
	closes    int
	liveData  int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files:     make(map[string][]byte),
		dirs:      map[string]bool{"/": true},
		overrides: make(map[string]int),
	}
}

// override forces verb to be answered with code.
func (f *fakeServer) override(verb string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[verb] = code
}

func (f *fakeServer) seed(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for d := path.Dir(p); ; d = path.Dir(d) {
		f.dirs[d] = true
		if d == "/" {
			break
		}
	}
	f.files[p] = data
}

func (f *fakeServer) file(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[p]
	return data, ok
}

func (f *fakeServer) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeServer) counts() (dials, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials, f.closes
}

// openData reports how many client data connections are still open.
func (f *fakeServer) openData() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveData
}

func (f *fakeServer) connect() *fakeConn {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()
	return &fakeConn{srv: f, cwd: "/"}
}

type fakeConn struct {
	srv     *fakeServer
	cwd     string
	binary  bool
	data    net.Conn
	pending chan reply
	closed  bool
}

type reply struct {
	code int
	msg  string
}

func (c *fakeConn) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(c.cwd, p)
}

func (c *fakeConn) SendCommand(format string, args ...interface{}) (int, string, error) {
	if c.closed {
		return 0, "", net.ErrClosed
	}
	line := fmt.Sprintf(format, args...)
	verb, arg, _ := strings.Cut(line, " ")

	f := c.srv
	f.mu.Lock()
	f.commands = append(f.commands, line)
	code, forced := f.overrides[verb]
	f.mu.Unlock()

	if forced {
		c.dropData()
		return code, "forced reply", nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch verb {
	case "TYPE":
		c.binary = arg == "I"
		return 200, "Type set to " + arg, nil
	case "CWD":
		p := c.resolve(arg)
		if !f.dirs[p] {
			return 550, "No such directory", nil
		}
		c.cwd = p
		return 250, "Directory changed", nil
	case "MKD":
		p := c.resolve(arg)
		if f.dirs[p] {
			return 550, "Directory exists", nil
		}
		if !f.dirs[path.Dir(p)] {
			return 550, "No parent", nil
		}
		f.dirs[p] = true
		return 257, fmt.Sprintf("%q created", p), nil
	case "SIZE":
		if !c.binary {
			return 550, "SIZE not allowed in ASCII mode", nil
		}
		data, ok := f.files[c.resolve(arg)]
		if !ok {
			return 550, "No such file", nil
		}
		return 213, fmt.Sprint(len(data)), nil
	case "DELE":
		p := c.resolve(arg)
		if _, ok := f.files[p]; !ok {
			return 550, "No such file", nil
		}
		delete(f.files, p)
		return 250, "Deleted", nil
	case "SITE":
		return 200, "SITE command ok", nil
	case "STOR":
		return c.stor(c.resolve(arg))
	case "RETR":
		return c.retr(c.resolve(arg))
	case "QUIT":
		return 221, "Goodbye", nil
	}
	return 502, "Command not implemented", nil
}

// stor must be called with srv.mu held.
func (c *fakeConn) stor(p string) (int, string, error) {
	if c.data == nil {
		return 425, "No data connection", nil
	}
	if !c.srv.dirs[path.Dir(p)] {
		c.dropData()
		return 553, "No such directory", nil
	}

	server := c.data
	c.data = nil
	c.pending = make(chan reply, 1)
	go func(done chan<- reply) {
		var buf bytes.Buffer
		_, err := io.Copy(&buf, server)
		_ = server.Close()
		if err != nil {
			done <- reply{426, "Transfer aborted"}
			return
		}
		c.srv.mu.Lock()
		c.srv.files[p] = buf.Bytes()
		c.srv.mu.Unlock()
		done <- reply{226, "Transfer complete"}
	}(c.pending)
	return 150, "Opening data connection", nil
}

// retr must be called with srv.mu held.
func (c *fakeConn) retr(p string) (int, string, error) {
	if c.data == nil {
		return 425, "No data connection", nil
	}
	data, ok := c.srv.files[p]
	if !ok {
		c.dropData()
		return 550, "No such file", nil
	}

	server := c.data
	c.data = nil
	c.pending = make(chan reply, 1)
	go func(done chan<- reply) {
		_, err := server.Write(data)
		_ = server.Close()
		if err != nil {
			done <- reply{426, "Transfer aborted"}
			return
		}
		done <- reply{226, "Transfer complete"}
	}(c.pending)
	return 150, "Opening data connection", nil
}

func (c *fakeConn) dropData() {
	if c.data != nil {
		_ = c.data.Close()
		c.data = nil
	}
}

func (c *fakeConn) PrepareDataConn() (func() (net.Conn, error), error) {
	client, server := net.Pipe()
	c.data = server
	c.srv.mu.Lock()
	c.srv.liveData++
	c.srv.mu.Unlock()
	dc := &dataEnd{Conn: client, srv: c.srv}
	return func() (net.Conn, error) { return dc, nil }, nil
}

// dataEnd is the client side of a data connection.
type dataEnd struct {
	net.Conn
	srv  *fakeServer
	once sync.Once
}

func (d *dataEnd) Close() error {
	d.once.Do(func() {
		d.srv.mu.Lock()
		d.srv.liveData--
		d.srv.mu.Unlock()
	})
	return d.Conn.Close()
}

func (c *fakeConn) ReadResponse() (int, string, error) {
	if c.pending == nil {
		return 0, "", errors.New("fake: no transfer in progress")
	}
	r := <-c.pending
	c.pending = nil
	return r.code, r.msg, nil
}

func (c *fakeConn) Close() error {
	if c.closed {
		return net.ErrClosed
	}
	c.closed = true
	c.dropData()
	c.srv.mu.Lock()
	c.srv.closes++
	c.srv.mu.Unlock()
	return nil
}

var _ rawConn = (*fakeConn)(nil)
