package server

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/pubsock/pkg/protocol"
)

// SessionManager is the registry of live sessions keyed by connection identity.
// It is split into independently locked shards so unrelated connections do
// not contend on one lock.
type SessionManager[T, D any] struct {
	shards []*sessionShard[T, D]
	mask   uint32

	// Metrics
	active       atomic.Int64
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peak         atomic.Int64

	logger *slog.Logger
}

type sessionShard[T, D any] struct {
	mu       sync.RWMutex
	sessions map[protocol.ConnID]*Session[T, D]
}

// NewSessionManager creates a SessionManager with the given number of shards.
func NewSessionManager[T, D any](shards int, logger *slog.Logger) *SessionManager[T, D] {
	if logger == nil {
		logger = slog.Default()
	}
	n := shardCount(shards)
	sm := &SessionManager[T, D]{
		shards: make([]*sessionShard[T, D], n),
		mask:   n - 1,
		logger: logger.With("component", "session_manager"),
	}
	for i := range sm.shards {
		sm.shards[i] = &sessionShard[T, D]{sessions: make(map[protocol.ConnID]*Session[T, D])}
	}
	return sm
}

func (sm *SessionManager[T, D]) shard(id protocol.ConnID) *sessionShard[T, D] {
	return sm.shards[fnv32(string(id))&sm.mask]
}

// Add registers a session. It returns false if the identity is already taken.
func (sm *SessionManager[T, D]) Add(s *Session[T, D]) bool {
	sh := sm.shard(s.id)
	sh.mu.Lock()
	if _, exists := sh.sessions[s.id]; exists {
		sh.mu.Unlock()
		return false
	}
	sh.sessions[s.id] = s
	sh.mu.Unlock()

	sm.totalCreated.Add(1)
	active := sm.active.Add(1)
	for {
		peak := sm.peak.Load()
		if active <= peak || sm.peak.CompareAndSwap(peak, active) {
			break
		}
	}

	sm.logger.Debug("session registered", "session_id", string(s.id), "active", active)
	return true
}

// Get returns the session with the given identity, or nil.
func (sm *SessionManager[T, D]) Get(id protocol.ConnID) *Session[T, D] {
	sh := sm.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sessions[id]
}

// Remove unregisters and returns the session with the given identity, or nil.
func (sm *SessionManager[T, D]) Remove(id protocol.ConnID) *Session[T, D] {
	sh := sm.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()

	if !ok {
		return nil
	}
	sm.totalClosed.Add(1)
	sm.active.Add(-1)
	sm.logger.Debug("session removed", "session_id", string(id))
	return s
}

// Count returns the number of registered sessions.
func (sm *SessionManager[T, D]) Count() int {
	return int(sm.active.Load())
}

// Snapshot returns the registered sessions at the time of the call.
// Later registrations and removals do not affect the returned slice.
func (sm *SessionManager[T, D]) Snapshot() []*Session[T, D] {
	out := make([]*Session[T, D], 0, sm.Count())
	for _, sh := range sm.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Clear unregisters every session and returns them.
func (sm *SessionManager[T, D]) Clear() []*Session[T, D] {
	var out []*Session[T, D]
	for _, sh := range sm.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			out = append(out, s)
			delete(sh.sessions, id)
		}
		sh.mu.Unlock()
	}
	if n := len(out); n > 0 {
		sm.totalClosed.Add(uint64(n))
		sm.active.Add(-int64(n))
	}
	return out
}

// Stats returns aggregated session statistics.
func (sm *SessionManager[T, D]) Stats() ManagerStats {
	return ManagerStats{
		Active:       sm.Count(),
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         int(sm.peak.Load()),
	}
}

// ManagerStats contains aggregated session manager statistics.
type ManagerStats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}
