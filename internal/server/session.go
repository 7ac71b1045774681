package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
)

const (
	sessionName = "analyst"
	sessionKey  = "sid"
)

// state is what one browser session accumulates.
type state struct {
	files    *upload.Set
	history  *analyst.Conversation
	lastSeen time.Time
}

type stateStore struct {
	mu     sync.Mutex
	states map[string]*state
}

func newStateStore() *stateStore {
	return &stateStore{states: map[string]*state{}}
}

func (st *stateStore) get(id string) *state {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.states[id]
	if !ok {
		s = &state{files: &upload.Set{}, history: &analyst.Conversation{}}
		st.states[id] = s
	}
	s.lastSeen = time.Now()
	return s
}

// prune drops sessions idle for longer than ttl.
func (st *stateStore) prune(ttl time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	n := 0
	for id, s := range st.states {
		if s.lastSeen.Before(cutoff) {
			delete(st.states, id)
			n++
		}
	}
	return n
}

func (st *stateStore) len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.states)
}

type ctxKey struct{}

// withSession makes sure the request carries a session id cookie and puts
// the session state in the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A cookie that fails to decode yields a fresh session.
		sess, _ := s.sessionStore.Get(r, sessionName)
		id, _ := sess.Values[sessionKey].(string)
		if id == "" {
			id = uuid.NewString()
			sess.Values[sessionKey] = id
			if err := sess.Save(r, w); err != nil {
				s.log.Error("save session", zap.Error(err))
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			s.log.Debug("session started", zap.String("session", id))
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, s.states.get(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stateFrom(ctx context.Context) *state {
	st, _ := ctx.Value(ctxKey{}).(*state)
	return st
}
