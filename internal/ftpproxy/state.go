package ftpproxy

import (
	"sync"
	"time"
)

// ConnectionState is the lifecycle state of one connection key.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// historySize is how many transitions are kept per key.
const historySize = 50

// StateTransition is one recorded state change.
type StateTransition struct {
	From      ConnectionState `json:"from"`
	To        ConnectionState `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
	Reason    string          `json:"reason"`
}

type keyState struct {
	current ConnectionState
	ring    [historySize]StateTransition
	head    int
	count   int
}

func (ks *keyState) history() []StateTransition {
	out := make([]StateTransition, 0, ks.count)
	start := 0
	if ks.count == historySize {
		start = ks.head
	}
	for i := 0; i < ks.count; i++ {
		out = append(out, ks.ring[(start+i)%historySize])
	}
	return out
}

// stateTracker records per-key state. Keys of short-lived sessions (tree
// refreshes) are forgotten once they disconnect, so the map does not grow
// with every tick.
type stateTracker struct {
	mu     sync.RWMutex
	states map[string]*keyState
	now    func() time.Time
}

func newStateTracker(now func() time.Time) *stateTracker {
	return &stateTracker{states: make(map[string]*keyState), now: now}
}

func (st *stateTracker) set(key string, to ConnectionState, reason string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ks, ok := st.states[key]
	if !ok {
		ks = &keyState{current: StateDisconnected}
		st.states[key] = ks
	}
	if ks.current == to {
		return
	}
	ks.ring[ks.head] = StateTransition{From: ks.current, To: to, Timestamp: st.now(), Reason: reason}
	ks.head = (ks.head + 1) % historySize
	if ks.count < historySize {
		ks.count++
	}
	ks.current = to
}

func (st *stateTracker) get(key string) ConnectionState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if ks, ok := st.states[key]; ok {
		return ks.current
	}
	return StateDisconnected
}

func (st *stateTracker) transitions(key string) []StateTransition {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if ks, ok := st.states[key]; ok {
		return ks.history()
	}
	return nil
}

func (st *stateTracker) forget(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, key)
}

// ConnectionState returns the current state of key.
func (m *Manager) ConnectionState(key string) ConnectionState {
	return m.states.get(key)
}

// StateTransitions returns up to the last 50 state changes for key, oldest first.
func (m *Manager) StateTransitions(key string) []StateTransition {
	return m.states.transitions(key)
}
