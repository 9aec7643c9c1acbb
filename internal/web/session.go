package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/google/uuid"
)

const (
	sessionCookie      = "textimage_session"
	DefaultSessionIdle = 30 * time.Minute
	sessionSweepEvery  = time.Minute
)

type session struct {
	controller *controller.Controller
	lastSeen   time.Time
}

// lookup returns the controller bound to the request's cookie without
// starting a new session.
func (s *Server) lookup(r *http.Request) (*controller.Controller, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cookie.Value]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.controller, true
}

// session is lookup, starting a new session when the cookie is missing or
// unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *controller.Controller {
	if c, ok := s.lookup(r); ok {
		return c
	}

	id := uuid.NewString()
	c := s.newController()

	s.mu.Lock()
	s.sessions[id] = &session{controller: c, lastSeen: s.now()}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.idleTimeout / time.Second),
	})
	log.FromContextOrDiscard(r.Context()).Info("started session", "session", id)
	return c
}

// sweep drops sessions idle for longer than the idle timeout. A session
// with a generation in flight is kept.
func (s *Server) sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTimeout)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.After(cutoff) || sess.controller.State().Loading {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	if evicted > 0 {
		log.FromContextOrDiscard(ctx).Info("evicted idle sessions", "count", evicted, "remaining", len(s.sessions))
	}
	return evicted
}

func (s *Server) sweepLoop(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}
