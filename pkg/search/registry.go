package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
)

// ErrTooManySessions is returned when the registry is full and every session is busy.
var ErrTooManySessions = errors.New("too many active search sessions")

// RegistryConfig bounds the sessions a registry holds.
type RegistryConfig struct {
	// MaxSessions caps the sessions held at once; zero means no cap.
	MaxSessions int
	// IdleTTL drops sessions that have not been used for this long; zero keeps them until closed.
	IdleTTL time.Duration
}

// Registry hands out sessions by ID, creating them on first use. Each session gets its own
// row cache from the provider.
type Registry struct {
	engine   *Engine
	caches   rowcache.Provider
	recorder Recorder
	cfg      RegistryConfig
	logger   ectologger.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry. caches and recorder may be nil.
func NewRegistry(engine *Engine, caches rowcache.Provider, recorder Recorder, cfg RegistryConfig, logger ectologger.Logger) *Registry {
	return &Registry{
		engine:   engine,
		caches:   caches,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session with the given ID, creating it if needed. Creating a session
// first drops idle ones; when the registry is still full the least recently used idle
// session makes room, and ErrTooManySessions is returned if none is idle.
func (r *Registry) Session(id string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, nil
	}

	idle := r.evictIdle()
	var displaced *Session
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		displaced = r.leastRecentlyUsed()
		if displaced == nil {
			metrics.ActiveSessions.Set(float64(len(r.sessions)))
			r.mu.Unlock()
			r.release(idle, "idle")
			return nil, ErrTooManySessions
		}
		delete(r.sessions, displaced.ID)
	}

	var cache rowcache.Cache
	if r.caches != nil {
		cache = r.caches(id)
	}
	s := NewSession(id, r.engine, cache, r.recorder, r.logger)
	s.now = r.now
	s.lastUsed = r.now()
	r.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.release(idle, "idle")
	if displaced != nil {
		r.release([]*Session{displaced}, "capacity")
	}
	return s, nil
}

// Lookup returns an existing session.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Close cancels a session's running search, clears its cache and forgets it.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if ok {
		r.release([]*Session{s}, "")
	}
	return ok
}

// evictIdle removes sessions idle for longer than the TTL. r.mu must be held.
func (r *Registry) evictIdle() []*Session {
	if r.cfg.IdleTTL <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	var evicted []*Session
	for id, s := range r.sessions {
		lastUsed, idle := s.idleSince()
		if idle && lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	return evicted
}

// leastRecentlyUsed returns the idle session used longest ago, or nil. r.mu must be held.
func (r *Registry) leastRecentlyUsed() *Session {
	var oldest *Session
	var oldestUse time.Time
	for _, s := range r.sessions {
		lastUsed, idle := s.idleSince()
		if !idle {
			continue
		}
		if oldest == nil || lastUsed.Before(oldestUse) {
			oldest, oldestUse = s, lastUsed
		}
	}
	return oldest
}

// release cancels dropped sessions and clears their caches.
func (r *Registry) release(sessions []*Session, reason string) {
	for _, s := range sessions {
		s.Cancel()
		if reason != "" {
			metrics.SessionsEvictedTotal.WithLabelValues(reason).Inc()
			r.logger.WithFields(map[string]any{
				"session_id": s.ID,
				"reason":     reason,
			}).Info("Evicted search session")
		}
		if s.cache == nil {
			continue
		}
		if err := s.cache.Clear(context.Background()); err != nil {
			r.logger.WithError(err).WithFields(map[string]any{"session_id": s.ID}).Warn("Failed to clear session cache")
		}
	}
}
