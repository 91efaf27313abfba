package ftpproxy

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore is an in-memory remote file system shared by every fakeSession
// dialed from the same fakeDialer.
type fakeStore struct {
	mu       sync.Mutex
	dirs     map[string][]Entry // absolute dir path -> listing, in listing order
	failList map[string]error   // listing a dir returns this error
	failNoop error
	closeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dirs:     map[string][]Entry{"/": {}},
		failList: map[string]error{},
	}
}

// addFile adds a file at an absolute path; parent dirs must exist.
func (fs *fakeStore) addFile(p string, size int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	dir, name := path.Split(p)
	dir = path.Clean(dir)
	fs.dirs[dir] = append(fs.dirs[dir], Entry{Name: name, Type: "file", Size: size})
}

// addDir adds a directory at an absolute path; its parent must exist.
func (fs *fakeStore) addDir(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirLocked(p)
}

func (fs *fakeStore) mkdirLocked(p string) {
	dir, name := path.Split(p)
	dir = path.Clean(dir)
	fs.dirs[dir] = append(fs.dirs[dir], Entry{Name: name, Type: "dir"})
	fs.dirs[p] = []Entry{}
}

func (fs *fakeStore) addEntry(dir string, e Entry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[dir] = append(fs.dirs[dir], e)
}

func (fs *fakeStore) setListError(dir string, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failList[dir] = err
}

func (fs *fakeStore) hasDir(p string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.dirs[p]
	return ok
}

func (fs *fakeStore) names(dir string) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []string
	for _, e := range fs.dirs[dir] {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

// fakeDialer hands out fakeSessions and counts the ones still open.
type fakeDialer struct {
	store   *fakeStore
	dialErr error
	delay   time.Duration

	mu       sync.Mutex
	sessions []*fakeSession
	dials    atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ Profile) (Session, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &fakeSession{store: d.store, cwd: "/"}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) setDialErr(err error) {
	d.mu.Lock()
	d.dialErr = err
	d.mu.Unlock()
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sessions {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

type fakeSession struct {
	store *fakeStore

	mu     sync.Mutex
	cwd    string
	closed bool
	sent   []string

	inFlight   atomic.Int32
	overlapped atomic.Bool
	hold       time.Duration
}

func (s *fakeSession) enter() func() {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}
	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) resolve(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

func (s *fakeSession) List(ctx context.Context) ([]Entry, error) {
	defer s.enter()()
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if err := s.store.failList[s.cwd]; err != nil {
		return nil, err
	}
	return append([]Entry(nil), s.store.dirs[s.cwd]...), nil
}

func (s *fakeSession) Pwd(ctx context.Context) (string, error) {
	defer s.enter()()
	return s.cwd, nil
}

func (s *fakeSession) Cd(ctx context.Context, p string) (string, error) {
	defer s.enter()()
	target := s.resolve(p)
	s.store.mu.Lock()
	_, ok := s.store.dirs[target]
	s.store.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("550 %s: no such directory", p)
	}
	s.cwd = target
	return "250 Directory changed to " + target, nil
}

func (s *fakeSession) EnsureDir(ctx context.Context, p string) error {
	defer s.enter()()
	target := s.resolve(p)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	cur := "/"
	for _, seg := range strings.Split(strings.Trim(target, "/"), "/") {
		if seg == "" {
			continue
		}
		next := path.Join(cur, seg)
		if _, ok := s.store.dirs[next]; !ok {
			s.store.mkdirLocked(next)
		}
		cur = next
	}
	return nil
}

func (s *fakeSession) Rename(ctx context.Context, from, to string) (string, error) {
	defer s.enter()()
	src, dst := s.resolve(from), s.resolve(to)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	srcDir, srcName := path.Split(src)
	srcDir = path.Clean(srcDir)
	entries := s.store.dirs[srcDir]
	for i, e := range entries {
		if e.Name != srcName {
			continue
		}
		s.store.dirs[srcDir] = append(entries[:i:i], entries[i+1:]...)
		dstDir, dstName := path.Split(dst)
		dstDir = path.Clean(dstDir)
		e.Name = dstName
		s.store.dirs[dstDir] = append(s.store.dirs[dstDir], e)
		return "250 Rename successful", nil
	}
	return "", fmt.Errorf("550 %s: not found", from)
}

func (s *fakeSession) Send(ctx context.Context, command string) (string, error) {
	defer s.enter()()
	s.mu.Lock()
	s.sent = append(s.sent, command)
	s.mu.Unlock()
	if strings.HasPrefix(strings.ToUpper(command), "SITE") {
		return "500 Unknown command", nil
	}
	return "200 " + command + " ok", nil
}

func (s *fakeSession) Noop(ctx context.Context) error {
	defer s.enter()()
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.failNoop
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.closeErr
}

// fakeMirror is an in-memory TreeMirror.
type fakeMirror struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
	err   error
}

func (f *fakeMirror) Save(_ context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snap = &snap
	f.saves++
	return nil
}

func (f *fakeMirror) Load(context.Context) (Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Snapshot{}, false, f.err
	}
	if f.snap == nil {
		return Snapshot{}, false, nil
	}
	return *f.snap, true, nil
}

// fakeHistory collects refresh runs.
type fakeHistory struct {
	mu   sync.Mutex
	runs []RefreshRun
}

func (f *fakeHistory) RecordRefresh(_ context.Context, run RefreshRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeHistory) all() []RefreshRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RefreshRun(nil), f.runs...)
}

// scenarioStore builds: /a.txt (10 bytes) and /docs/b.txt (20 bytes).
func scenarioStore() *fakeStore {
	fs := newFakeStore()
	fs.addFile("/a.txt", 10)
	fs.addDir("/docs")
	fs.addFile("/docs/b.txt", 20)
	return fs
}

var errFakeTransport = errors.New("fake transport failure")

func newTestManager(t *testing.T, d *fakeDialer, mutate ...func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		Profile:   Profile{Name: "test", Host: "ftp.test", Port: 21, User: "anonymous"},
		Dialer:    d,
		Logger:    zap.NewNop(),
		OpTimeout: 5 * time.Second,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m := NewManager(opts)
	t.Cleanup(m.CloseAll)
	return m
}

func mustConnect(t *testing.T, m *Manager, key string) {
	t.Helper()
	if err := m.Connect(context.Background(), key); err != nil {
		t.Fatalf("Connect(%q) error: %v", key, err)
	}
}
