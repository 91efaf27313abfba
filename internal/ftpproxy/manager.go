// Package ftpproxy keeps named sessions to a remote FTP store and serves
// directory operations and a cached tree snapshot over them.
//
// The central type is Manager. It owns:
//   - the session registry (manager.go), keyed by caller-chosen connection keys;
//   - flat directory operations (ops.go) and the deep tree walker (walker.go);
//   - the tree cache (cache.go) and the periodic refresher (refresher.go);
//   - a NOOP health checker for idle sessions (health.go).
//
// Every command against one session is serialised by that session's mutex.
// Commands on different keys run concurrently.
package ftpproxy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gluk-w/ftpgate/internal/logutil"
)

const (
	defaultOpTimeout       = 30 * time.Second
	defaultMaxDepth        = 64
	defaultRefreshInterval = 60 * time.Second
	defaultRefreshTimeout  = 5 * time.Minute
	defaultHealthInterval  = 30 * time.Second
	closeTimeout           = 5 * time.Second
)

// Options configures a Manager. Only Profile is required.
type Options struct {
	Profile Profile
	Dialer  Dialer
	Logger  *zap.Logger
	Metrics Metrics

	// History receives one record per refresh tick. Optional.
	History RefreshRecorder
	// Mirror persists cached trees outside the process. Optional.
	Mirror TreeMirror

	OpTimeout       time.Duration
	MaxDepth        int
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	HealthInterval  time.Duration
	// ConnectRateLimit caps dials to the endpoint per minute. Defaults to 30.
	ConnectRateLimit int

	// NewKey generates keys for refresh sessions. Defaults to uuid.NewString.
	NewKey func() string
	Now    func() time.Time
}

// Manager is the connection registry plus everything built on it. Create
// one with NewManager at process start and call CloseAll at shutdown.
type Manager struct {
	profile Profile
	dialer  Dialer
	log     *zap.Logger
	metrics Metrics
	history RefreshRecorder
	mirror  TreeMirror

	opTimeout       time.Duration
	maxDepth        int
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	healthInterval  time.Duration
	newKey          func() string
	now             func() time.Time

	mu       sync.RWMutex
	sessions map[string]*managedSession
	// pending holds keys whose Connect is dialing.
	pending map[string]struct{}
	limiter *connectLimiter

	states *stateTracker
	cache  *treeCache

	bgMu          sync.Mutex
	refresher     *refresher
	healthCancel  context.CancelFunc
	healthStopped chan struct{}
}

// managedSession wraps a Session with the lock that serialises its commands.
type managedSession struct {
	mu      sync.Mutex
	sess    Session
	closed  bool
	metrics *SessionMetrics
}

// NewManager builds a Manager. Background tasks are not started; see
// StartRefresher and StartHealthChecker.
func NewManager(opts Options) *Manager {
	m := &Manager{
		profile:         opts.Profile,
		dialer:          opts.Dialer,
		log:             opts.Logger,
		metrics:         opts.Metrics,
		history:         opts.History,
		mirror:          opts.Mirror,
		opTimeout:       opts.OpTimeout,
		maxDepth:        opts.MaxDepth,
		refreshInterval: opts.RefreshInterval,
		refreshTimeout:  opts.RefreshTimeout,
		healthInterval:  opts.HealthInterval,
		newKey:          opts.NewKey,
		now:             opts.Now,
		sessions:        make(map[string]*managedSession),
		pending:         make(map[string]struct{}),
	}
	if m.dialer == nil {
		m.dialer = FTPDialer{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	if m.opTimeout <= 0 {
		m.opTimeout = defaultOpTimeout
	}
	if m.maxDepth <= 0 {
		m.maxDepth = defaultMaxDepth
	}
	if m.refreshInterval <= 0 {
		m.refreshInterval = defaultRefreshInterval
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = defaultRefreshTimeout
	}
	if m.healthInterval <= 0 {
		m.healthInterval = defaultHealthInterval
	}
	if m.newKey == nil {
		m.newKey = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.states = newStateTracker(m.now)
	m.limiter = newConnectLimiter(opts.ConnectRateLimit, m.now, m.log)
	m.cache = &treeCache{}
	return m
}

// Connect opens a session for key using the configured profile. A key that
// already holds a live session, or is being connected by another call, is
// rejected with ErrKeyInUse; on failure nothing is registered under key.
// Dials are limited per endpoint; a refused dial returns a *RateLimitError.
func (m *Manager) Connect(ctx context.Context, key string) error {
	m.mu.Lock()
	_, live := m.sessions[key]
	_, dialing := m.pending[key]
	if live || dialing {
		m.mu.Unlock()
		return newOpError(OpConnect, key, ErrKeyInUse)
	}
	m.pending[key] = struct{}{}
	m.mu.Unlock()

	addr := m.profile.Addr()
	if err := m.limiter.allow(addr); err != nil {
		m.releasePending(key)
		m.metrics.ObserveOp(OpConnect, err)
		m.log.Warn("ftp connect refused",
			zap.String("key", logutil.SanitizeForLog(key)), zap.Error(err))
		return newOpError(OpConnect, key, err)
	}

	m.states.set(key, StateConnecting, "connecting to "+addr)
	dialCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	sess, err := m.dialer.Dial(dialCtx, m.profile)
	m.metrics.ObserveOp(OpConnect, err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.limiter.recordFailure(addr)
		}
		// The key is still pending, so no other Connect can have registered it.
		m.states.set(key, StateFailed, err.Error())
		m.releasePending(key)
		m.log.Warn("ftp connect failed",
			zap.String("key", logutil.SanitizeForLog(key)),
			zap.String("addr", addr),
			zap.Error(err))
		return newOpError(OpConnect, key, err)
	}
	m.limiter.recordSuccess(addr)

	m.mu.Lock()
	delete(m.pending, key)
	m.sessions[key] = &managedSession{
		sess:    sess,
		metrics: &SessionMetrics{ConnectedAt: m.now()},
	}
	open := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetOpenSessions(open)
	m.states.set(key, StateConnected, "connected to "+addr)
	m.log.Debug("ftp session opened", zap.String("key", logutil.SanitizeForLog(key)))
	return nil
}

func (m *Manager) releasePending(key string) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
}

// Disconnect closes the session under key and clears the slot. It waits for
// an in-flight command on that session to finish. Close failures are logged
// and swallowed; an empty key is a no-op.
func (m *Manager) Disconnect(key string) {
	m.mu.Lock()
	ms, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	open := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.metrics.SetOpenSessions(open)

	ms.mu.Lock()
	ms.closed = true
	err := closeWithTimeout(ms.sess)
	ms.mu.Unlock()

	if err != nil {
		m.log.Warn("ftp session close failed",
			zap.String("key", logutil.SanitizeForLog(key)), zap.Error(err))
	}
	m.states.set(key, StateDisconnected, "disconnected")
}

// CloseAll stops background tasks and closes every session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.StopRefresher()
	m.StopHealthChecker()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*managedSession)
	m.mu.Unlock()
	m.metrics.SetOpenSessions(0)

	for key, ms := range sessions {
		ms.mu.Lock()
		ms.closed = true
		if err := closeWithTimeout(ms.sess); err != nil {
			m.log.Warn("ftp session close failed",
				zap.String("key", logutil.SanitizeForLog(key)), zap.Error(err))
		}
		ms.mu.Unlock()
		m.states.set(key, StateDisconnected, "manager closed")
	}
	m.log.Info("all ftp sessions closed", zap.Int("count", len(sessions)))
}

// IsConnected reports whether key holds a registered session.
func (m *Manager) IsConnected(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[key]
	return ok
}

// Keys returns the registered connection keys in sorted order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// withSession runs fn against key's session while holding its lock, under
// the per-call timeout. Errors come back wrapped in an OpError for op.
func (m *Manager) withSession(ctx context.Context, op, key string, fn func(context.Context, Session) error) error {
	m.mu.RLock()
	ms, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		m.metrics.ObserveOp(op, ErrNoSession)
		return newOpError(op, key, ErrNoSession)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeoutFor(op))
	defer cancel()

	ms.mu.Lock()
	var err error
	if ms.closed {
		err = ErrNoSession
	} else {
		err = fn(ctx, ms.sess)
	}
	ms.mu.Unlock()

	ms.metrics.recordCommand(err)
	m.metrics.ObserveOp(op, err)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.log.Warn("ftp operation failed",
				zap.String("op", op),
				zap.String("key", logutil.SanitizeForLog(key)),
				zap.Error(err))
		}
		return newOpError(op, key, err)
	}
	return nil
}

// timeoutFor returns the deadline applied to one call of op. A tree walk is
// many round trips, so it gets the refresh budget instead of the per-command one.
func (m *Manager) timeoutFor(op string) time.Duration {
	if op == OpTree {
		return m.refreshTimeout
	}
	return m.opTimeout
}

func closeQuietly(s Session) {
	_ = closeWithTimeout(s)
}

// closeWithTimeout bounds Close, since QUIT on a dead control connection
// can otherwise block for the full transport timeout.
func closeWithTimeout(s Session) error {
	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(closeTimeout):
		return fmt.Errorf("close timed out after %s", closeTimeout)
	}
}
