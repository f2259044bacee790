package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/stockdash/internal/dashboard"
	"github.com/seenimoa/stockdash/internal/metrics"
)

// Session is one browser's dashboard: its own query, stock and loading flag.
type Session struct {
	ID   string
	Ctrl *dashboard.Controller

	lastSeen time.Time
}

// SessionStore keeps sessions in memory, keyed by cookie value.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	idle    time.Duration
	now     func() time.Time
	create  func(id string) *dashboard.Controller
	busy    func(id string) bool
	metrics *metrics.Metrics
}

// NewSessionStore creates a store whose sessions expire after idle.
// create builds the controller for a new session.
func NewSessionStore(idle time.Duration, create func(id string) *dashboard.Controller, m *metrics.Metrics) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
		create:   create,
		busy:     func(string) bool { return false },
		metrics:  m,
	}
}

// Acquire returns the session for id, creating it if needed. Ids that are
// not UUIDs are replaced with a fresh one. created reports a new session.
func (st *SessionStore) Acquire(id string) (sess *Session, created bool) {
	if err := uuid.Validate(id); err != nil {
		id = uuid.NewString()
	}

	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		sess = &Session{ID: id, Ctrl: st.create(id)}
		st.sessions[id] = sess
	}
	sess.lastSeen = st.now()
	n := len(st.sessions)
	st.mu.Unlock()

	if !ok {
		st.metrics.SetSessions(n)
	}
	return sess, !ok
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the idle timeout, except those
// with open WebSocket clients. It returns the number removed.
func (st *SessionStore) Sweep() int {
	cutoff := st.now().Add(-st.idle)

	st.mu.Lock()
	removed := 0
	for id, sess := range st.sessions {
		if sess.lastSeen.Before(cutoff) && !st.busy(id) {
			delete(st.sessions, id)
			removed++
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()

	st.metrics.SetSessions(n)
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (st *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			st.Sweep()
		}
	}
}

// session resolves the caller's session from its cookie, setting the cookie
// when a new session is created.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *Session {
	var id string
	if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.Acquire(id)
	if created || id != sess.ID {
		http.SetCookie(w, s.sessionCookie(sess.ID))
	}
	return sess
}

func (s *Server) sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
