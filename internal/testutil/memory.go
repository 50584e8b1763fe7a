// Package testutil provides an in-memory transport for testing storage
// backends. It keeps remote files in a map, records every session it opens
// and closes, and can inject failures into any transport operation, so tests
// run quickly without a remote server.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/jmgilman/go/storage"
)

// Op names a transport operation for fault injection.
type Op string

// Operations that can be made to fail or panic.
const (
	OpDial      Op = "dial"
	OpMkdir     Op = "mkdir"
	OpChangeDir Op = "chdir"
	OpPut       Op = "put"
	OpGet       Op = "get"
	OpSize      Op = "size"
	OpDelete    Op = "delete"
	OpChmod     Op = "chmod"
	OpClose     Op = "close"
)

// Addressing selects how sessions address files.
type Addressing int

const (
	// PathAddressed sessions take full paths (SFTP style).
	PathAddressed Addressing = iota

	// DirAddressed sessions implement storage.DirChanger and storage.Chmoder
	// and resolve names against a current directory (FTP style).
	DirAddressed
)

// ChmodCall records one Chmod sent through a session.
type ChmodCall struct {
	Path string
	Mode os.FileMode
}

// MemoryDialer is a storage.Dialer backed by an in-memory file tree.
// All methods are safe for concurrent use.
type MemoryDialer struct {
	mu         sync.Mutex
	protocol   string
	addressing Addressing
	files      map[string][]byte
	dirs       map[string]bool
	faults     map[Op]error
	panics     map[Op]bool
	chmods     []ChmodCall
	commands   []string
	opened     int
	closed     int
}

// NewMemoryDialer creates an empty in-memory transport.
//
// Example:
//
//	dialer := testutil.NewMemoryDialer("ftp", testutil.DirAddressed)
//	backend, _ := storage.New(uploader, dialer)
func NewMemoryDialer(protocol string, addressing Addressing) *MemoryDialer {
	return &MemoryDialer{
		protocol:   protocol,
		addressing: addressing,
		files:      make(map[string][]byte),
		dirs:       map[string]bool{"/": true},
		faults:     make(map[Op]error),
		panics:     make(map[Op]bool),
	}
}

// Protocol returns the configured protocol name.
func (d *MemoryDialer) Protocol() string {
	return d.protocol
}

// Dial opens a new in-memory session.
func (d *MemoryDialer) Dial(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.fault(OpDial); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.opened++
	d.mu.Unlock()

	s := &memSession{d: d, cwd: "/"}
	if d.addressing == DirAddressed {
		return &dirSession{memSession: s}, nil
	}
	return s, nil
}

// Fail makes every subsequent op return err. A nil err clears the fault.
func (d *MemoryDialer) Fail(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.faults, op)
		return
	}
	d.faults[op] = err
}

// Panic makes every subsequent op panic.
func (d *MemoryDialer) Panic(op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panics[op] = true
}

// Seed stores data at the absolute path p, creating parent directories.
func (d *MemoryDialer) Seed(p string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mkdirAll(path.Dir(p))
	d.files[path.Clean(p)] = append([]byte(nil), data...)
}

// File returns the contents stored at the absolute path p.
func (d *MemoryDialer) File(p string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[path.Clean(p)]
	return data, ok
}

// Paths returns every stored file path in sorted order.
func (d *MemoryDialer) Paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.files))
	for p := range d.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasDir reports whether the directory p exists.
func (d *MemoryDialer) HasDir(p string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirs[path.Clean(p)]
}

// Chmods returns every Chmod sent so far.
func (d *MemoryDialer) Chmods() []ChmodCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChmodCall(nil), d.chmods...)
}

// Commands returns a log of every session operation, such as "PUT /a/b".
func (d *MemoryDialer) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Opened returns the number of sessions dialed successfully.
func (d *MemoryDialer) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed returns the number of sessions closed.
func (d *MemoryDialer) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Live returns the number of sessions opened but not yet closed.
func (d *MemoryDialer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened - d.closed
}

func (d *MemoryDialer) fault(op Op) error {
	d.mu.Lock()
	p := d.panics[op]
	err := d.faults[op]
	d.mu.Unlock()

	if p {
		panic(fmt.Sprintf("testutil: injected panic in %s", op))
	}
	return err
}

func (d *MemoryDialer) record(format string, args ...interface{}) {
	d.commands = append(d.commands, fmt.Sprintf(format, args...))
}

// mkdirAll must be called with mu held.
func (d *MemoryDialer) mkdirAll(dir string) {
	for dir = path.Clean(dir); ; dir = path.Dir(dir) {
		d.dirs[dir] = true
		if dir == "/" || dir == "." {
			return
		}
	}
}

type memSession struct {
	d      *MemoryDialer
	cwd    string
	closed bool
}

func (s *memSession) resolve(name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(s.cwd, name)
}

func (s *memSession) check(op Op) error {
	if s.closed {
		return errors.New("testutil: session is closed")
	}
	return s.d.fault(op)
}

func (s *memSession) MkdirAll(dir string) error {
	if err := s.check(OpMkdir); err != nil {
		return err
	}
	p := s.resolve(dir)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("MKDIR %s", p)
	if _, isFile := s.d.files[p]; isFile {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	s.d.mkdirAll(p)
	return nil
}

func (s *memSession) Put(target string, r io.Reader, _ int64) error {
	if err := s.check(OpPut); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p := s.resolve(target)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("PUT %s", p)
	if !s.d.dirs[path.Dir(p)] {
		return &fs.PathError{Op: "put", Path: p, Err: fs.ErrNotExist}
	}
	s.d.files[p] = data
	return nil
}

func (s *memSession) Get(target string, w io.Writer) error {
	if err := s.check(OpGet); err != nil {
		return err
	}
	p := s.resolve(target)

	s.d.mu.Lock()
	s.d.record("GET %s", p)
	data, ok := s.d.files[p]
	s.d.mu.Unlock()

	if !ok {
		return &fs.PathError{Op: "get", Path: p, Err: fs.ErrNotExist}
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (s *memSession) Size(target string) (int64, error) {
	if err := s.check(OpSize); err != nil {
		return 0, err
	}
	p := s.resolve(target)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("SIZE %s", p)
	data, ok := s.d.files[p]
	if !ok {
		return 0, &fs.PathError{Op: "size", Path: p, Err: fs.ErrNotExist}
	}
	return int64(len(data)), nil
}

func (s *memSession) Delete(target string) error {
	if err := s.check(OpDelete); err != nil {
		return err
	}
	p := s.resolve(target)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("DELETE %s", p)
	if _, ok := s.d.files[p]; !ok {
		return &fs.PathError{Op: "delete", Path: p, Err: fs.ErrNotExist}
	}
	delete(s.d.files, p)
	return nil
}

func (s *memSession) Close() error {
	if s.closed {
		return errors.New("testutil: session closed twice")
	}
	s.closed = true

	s.d.mu.Lock()
	s.d.closed++
	s.d.mu.Unlock()

	return s.d.fault(OpClose)
}

// dirSession adds FTP-style directory addressing and chmod.
type dirSession struct {
	*memSession
}

func (s *dirSession) ChangeDir(dir string) error {
	if err := s.check(OpChangeDir); err != nil {
		return err
	}
	p := s.resolve(dir)

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("CWD %s", p)
	if !s.d.dirs[p] {
		return &fs.PathError{Op: "chdir", Path: p, Err: fs.ErrNotExist}
	}
	s.cwd = p
	return nil
}

func (s *dirSession) Chmod(p string, mode os.FileMode) error {
	if err := s.check(OpChmod); err != nil {
		return err
	}

	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.record("CHMOD %o %s", mode, p)
	s.d.chmods = append(s.d.chmods, ChmodCall{Path: p, Mode: mode})
	return nil
}

var (
	_ storage.Dialer     = (*MemoryDialer)(nil)
	_ storage.Session    = (*memSession)(nil)
	_ storage.DirChanger = (*dirSession)(nil)
	_ storage.Chmoder    = (*dirSession)(nil)
)
