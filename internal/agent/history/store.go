package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	logx "github.com/sdg-insight/server/pkg/logger"
)

// ErrInvalidSessionID is returned for blank session identifiers.
var ErrInvalidSessionID = errors.New("session id is required")

// Session owns one conversation history. Its guard is a one-slot channel so
// waiting for it can be abandoned when a context ends.
type Session struct {
	id       string
	guard    chan struct{}
	messages []*schema.Message
	lastUsed time.Time
	active   int
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Store keeps sessions in memory, keyed by id, and evicts idle ones.
type Store struct {
	manager *Manager
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore builds a store whose histories are trimmed by manager.
func NewStore(manager *Manager, idleTTL time.Duration) *Store {
	return &Store{
		manager:  manager,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// NewSessionID issues a fresh server-side identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating an empty one if needed.
func (s *Store) GetOrCreate(id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id), nil
}

func (s *Store) getOrCreateLocked(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			id:       id,
			guard:    make(chan struct{}, 1),
			lastUsed: s.now(),
		}
		s.sessions[id] = sess
	}
	return sess
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Begin takes exclusive hold of the session for one turn. The caller must call
// End on the returned Turn.
func (s *Store) Begin(ctx context.Context, id string) (*Turn, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	s.mu.Lock()
	sess := s.getOrCreateLocked(id)
	sess.active++
	s.mu.Unlock()

	select {
	case sess.guard <- struct{}{}:
		return &Turn{store: s, sess: sess}, nil
	case <-ctx.Done():
		s.mu.Lock()
		sess.active--
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Sweep removes sessions idle for longer than the TTL and not in use.
// It returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.active == 0 && now.Sub(sess.lastUsed) > s.idleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx ends.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				logx.Debug().Int("evicted", n).Int("remaining", s.Len()).Msg("Evicted idle sessions")
			}
		}
	}
}

// Turn is exclusive access to one session for the duration of a user turn.
type Turn struct {
	store *Store
	sess  *Session
	ended bool
}

// SessionID returns the id of the held session.
func (t *Turn) SessionID() string {
	return t.sess.id
}

// History returns a copy of the committed history.
func (t *Turn) History() []*schema.Message {
	out := make([]*schema.Message, len(t.sess.messages))
	copy(out, t.sess.messages)
	return out
}

// AppendAndTrim commits msg to the session through the history manager.
func (t *Turn) AppendAndTrim(msg *schema.Message) []*schema.Message {
	t.sess.messages = t.store.manager.AppendAndTrim(t.sess.messages, msg)
	return t.History()
}

// End releases the session. Calling it twice is a no-op.
func (t *Turn) End() {
	if t.ended {
		return
	}
	t.ended = true

	t.store.mu.Lock()
	t.sess.active--
	t.sess.lastUsed = t.store.now()
	t.store.mu.Unlock()

	<-t.sess.guard
}
