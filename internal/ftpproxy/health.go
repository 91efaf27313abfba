package ftpproxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gluk-w/ftpgate/internal/logutil"
)

// healthCheckTimeout bounds one NOOP round trip.
const healthCheckTimeout = 5 * time.Second

// SessionMetrics tracks per-session usage and health.
type SessionMetrics struct {
	mu               sync.Mutex
	ConnectedAt      time.Time `json:"connectedAt"`
	LastCommand      time.Time `json:"lastCommand"`
	Commands         int64     `json:"commands"`
	FailedCommands   int64     `json:"failedCommands"`
	LastHealthCheck  time.Time `json:"lastHealthCheck"`
	SuccessfulChecks int64     `json:"successfulChecks"`
	FailedChecks     int64     `json:"failedChecks"`
}

// Snapshot returns a copy safe to read without the lock.
func (sm *SessionMetrics) Snapshot() SessionMetrics {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return SessionMetrics{
		ConnectedAt:      sm.ConnectedAt,
		LastCommand:      sm.LastCommand,
		Commands:         sm.Commands,
		FailedCommands:   sm.FailedCommands,
		LastHealthCheck:  sm.LastHealthCheck,
		SuccessfulChecks: sm.SuccessfulChecks,
		FailedChecks:     sm.FailedChecks,
	}
}

func (sm *SessionMetrics) recordCommand(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.LastCommand = time.Now()
	sm.Commands++
	if err != nil {
		sm.FailedCommands++
	}
}

func (sm *SessionMetrics) recordCheck(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.LastHealthCheck = time.Now()
	if err != nil {
		sm.FailedChecks++
		return
	}
	sm.SuccessfulChecks++
}

// SessionMetrics returns a snapshot for key, or nil if key has no session.
func (m *Manager) SessionMetrics(key string) *SessionMetrics {
	m.mu.RLock()
	ms, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	snap := ms.metrics.Snapshot()
	return &snap
}

// HealthCheck sends NOOP over key's session. A session that is busy with
// another command is reported as healthy without being touched.
func (m *Manager) HealthCheck(ctx context.Context, key string) error {
	m.mu.RLock()
	ms, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("health check %q: %w", key, ErrNoSession)
	}

	if !ms.mu.TryLock() {
		return nil
	}
	defer ms.mu.Unlock()
	if ms.closed {
		return fmt.Errorf("health check %q: %w", key, ErrNoSession)
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	err := ms.sess.Noop(ctx)
	ms.metrics.recordCheck(err)
	m.metrics.ObserveHealthCheck(err)
	if err != nil {
		return fmt.Errorf("health check %q: %w", key, err)
	}
	return nil
}

// StartHealthChecker checks every live session once per health interval.
// Sessions that fail are closed, dropped and marked failed.
func (m *Manager) StartHealthChecker(ctx context.Context) {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	if m.healthCancel != nil {
		return
	}
	hcCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	m.healthCancel = cancel
	m.healthStopped = stopped

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(m.healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hcCtx.Done():
				return
			case <-ticker.C:
				m.checkAllSessions(hcCtx)
			}
		}
	}()

	m.log.Info("ftp health checker started", zap.Duration("interval", m.healthInterval))
}

// StopHealthChecker stops the checker and waits for an in-progress pass.
func (m *Manager) StopHealthChecker() {
	m.bgMu.Lock()
	cancel, stopped := m.healthCancel, m.healthStopped
	m.healthCancel, m.healthStopped = nil, nil
	m.bgMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (m *Manager) checkAllSessions(ctx context.Context) {
	for _, key := range m.Keys() {
		if ctx.Err() != nil {
			return
		}
		err := m.HealthCheck(ctx, key)
		if err == nil || errors.Is(err, ErrNoSession) {
			continue
		}
		m.log.Warn("ftp health check failed",
			zap.String("key", logutil.SanitizeForLog(key)), zap.Error(err))
		m.Disconnect(key)
		// Leave the key marked failed so its status shows why it went away.
		m.states.set(key, StateFailed, err.Error())
	}
}
