package ftpproxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// refresher is the running cron schedule plus the context its jobs use.
type refresher struct {
	cron   *cron.Cron
	cancel context.CancelFunc
}

// cronLogger routes cron's own messages (skipped ticks, recovered panics)
// through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// StartRefresher schedules RefreshNow every refresh interval. A tick still
// running when the next one is due causes that next one to be skipped.
// The cache is first warmed from the mirror, if one is configured. Calling
// StartRefresher twice is a no-op.
func (m *Manager) StartRefresher(ctx context.Context) error {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	if m.refresher != nil {
		return nil
	}

	m.warmFromMirror(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s: m.log.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	schedule := "@every " + m.refreshInterval.String()
	if _, err := c.AddFunc(schedule, func() { _, _ = m.RefreshNow(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule tree refresh %q: %w", schedule, err)
	}
	c.Start()
	m.refresher = &refresher{cron: c, cancel: cancel}

	m.log.Info("tree refresher started", zap.Duration("interval", m.refreshInterval))
	return nil
}

// StopRefresher cancels a running tick and waits for it to return.
func (m *Manager) StopRefresher() {
	m.bgMu.Lock()
	r := m.refresher
	m.refresher = nil
	m.bgMu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.cron.Stop().Done()
	m.log.Info("tree refresher stopped")
}

// RefreshNow runs one refresh: connect under a fresh key, walk, close, and
// replace the cache on success. A failed refresh leaves the cache as it was.
func (m *Manager) RefreshNow(ctx context.Context) (Tree, error) {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	key := "refresh-" + m.newKey()
	started := m.now()

	tree, err := m.refreshOnce(ctx, key)

	finished := m.now()
	m.metrics.ObserveRefresh(finished.Sub(started), err)
	m.recordRun(ctx, RefreshRun{
		Key:        key,
		StartedAt:  started,
		FinishedAt: finished,
		Nodes:      CountNodes(tree),
		Err:        err,
	})

	if err != nil {
		m.log.Warn("tree refresh failed, keeping cached tree",
			zap.String("key", key),
			zap.Duration("took", finished.Sub(started)),
			zap.Error(err))
		return nil, err
	}
	m.storeSnapshot(ctx, Snapshot{Tree: tree, TakenAt: finished.UTC(), Source: key})
	m.log.Info("tree refreshed",
		zap.String("key", key),
		zap.Int("nodes", CountNodes(tree)),
		zap.Duration("took", finished.Sub(started)))
	return tree, nil
}

// refreshOnce connects and walks under key. Refresh keys are never reused,
// so their state entry is dropped afterwards.
func (m *Manager) refreshOnce(ctx context.Context, key string) (Tree, error) {
	defer m.states.forget(key)
	if err := m.Connect(ctx, key); err != nil {
		return nil, err
	}
	return m.FetchTree(ctx, key)
}

func (m *Manager) recordRun(ctx context.Context, run RefreshRun) {
	if m.history == nil {
		return
	}
	// The tick's own deadline may already be spent; history is still wanted.
	ctx = context.WithoutCancel(ctx)
	if err := m.history.RecordRefresh(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn("record refresh run failed", zap.String("key", run.Key), zap.Error(err))
	}
}
