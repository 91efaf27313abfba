package ftpproxy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one cached tree together with when and by which key it was walked.
type Snapshot struct {
	Tree    Tree      `json:"tree"`
	TakenAt time.Time `json:"takenAt"`
	Source  string    `json:"source"`
}

// TreeMirror persists snapshots outside the process so a restarted instance
// can serve the last good tree before its first refresh.
type TreeMirror interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns ok=false when nothing has been saved yet.
	Load(ctx context.Context) (snap Snapshot, ok bool, err error)
}

// treeCache holds the latest snapshot. Writes replace it wholesale.
type treeCache struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func (c *treeCache) get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}

func (c *treeCache) set(s Snapshot) {
	c.mu.Lock()
	c.snap = &s
	c.mu.Unlock()
}

// CachedSnapshot returns the cached snapshot, if any. The tree is shared
// with other readers and must not be modified.
func (m *Manager) CachedSnapshot() (Snapshot, bool) {
	return m.cache.get()
}

// TreeCached returns the cached tree. With an empty cache it falls back to
// FetchTree on key, which must hold an open session, and caches the result.
func (m *Manager) TreeCached(ctx context.Context, key string) (Tree, error) {
	if snap, ok := m.cache.get(); ok {
		return snap.Tree, nil
	}
	tree, err := m.FetchTree(ctx, key)
	if err != nil {
		return nil, err
	}
	m.storeSnapshot(ctx, Snapshot{Tree: tree, TakenAt: m.now().UTC(), Source: key})
	return tree, nil
}

// storeSnapshot publishes a fully walked tree to the cache and the mirror.
func (m *Manager) storeSnapshot(ctx context.Context, snap Snapshot) {
	m.cache.set(snap)
	m.metrics.SetCachedNodes(CountNodes(snap.Tree))
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Save(ctx, snap); err != nil {
		m.log.Warn("tree mirror save failed", zap.Error(err))
	}
}

// warmFromMirror loads the mirrored snapshot into an empty cache.
func (m *Manager) warmFromMirror(ctx context.Context) {
	if m.mirror == nil {
		return
	}
	if _, ok := m.cache.get(); ok {
		return
	}
	snap, ok, err := m.mirror.Load(ctx)
	if err != nil {
		m.log.Warn("tree mirror load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	m.cache.set(snap)
	m.metrics.SetCachedNodes(CountNodes(snap.Tree))
	m.log.Info("tree cache warmed from mirror",
		zap.Time("taken_at", snap.TakenAt),
		zap.Int("nodes", CountNodes(snap.Tree)))
}
