package session

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"hotspot-map/internal/dataset"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/surface"
)

// Manager tracks live sessions and expires the idle ones.
type Manager struct {
	opts Options
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager subscribes to opts.Data so every session re-renders after a reload.
func NewManager(opts Options, idleTTL time.Duration) *Manager {
	m := &Manager{opts: opts, ttl: idleTTL, sessions: make(map[string]*Session)}
	if opts.Data != nil {
		opts.Data.Subscribe(func(*dataset.Loaded) { m.broadcast() })
	}
	return m
}

// IdleTTLFromEnv reads SESSION_IDLE_TTL_S (default 30 minutes).
func IdleTTLFromEnv() time.Duration {
	if s := os.Getenv("SESSION_IDLE_TTL_S"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 30 * time.Minute
}

func (m *Manager) Create(initial surface.MapOptions) *Session {
	s := newSession(m.opts, initial)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.SessionsActive.Inc()
	logger.L().Info("session_create", "session", s.ID, "level", initial.Level)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets a session. It reports whether the id was known.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	metrics.SessionsActive.Dec()
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) list() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) broadcast() {
	for _, s := range m.list() {
		s.DataChanged()
	}
}

// Sweep closes sessions idle longer than the TTL as of now and returns how many it closed.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	n := 0
	for _, s := range m.list() {
		if now.Sub(s.LastSeen()) > m.ttl && m.Delete(s.ID) {
			n++
		}
	}
	if n > 0 {
		logger.L().Info("session_sweep", "closed", n, "active", m.Len())
	}
	return n
}

// Run sweeps every interval until ctx is done, then closes everything.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case now := <-t.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) CloseAll() {
	for _, s := range m.list() {
		m.Delete(s.ID)
	}
}
