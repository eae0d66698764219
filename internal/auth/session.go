package auth

import (
	"time"

	"mcdry/internal/cache"

	"github.com/google/uuid"
)

// FlashLevel maps onto the CSS class of the message box.
type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashWarning FlashLevel = "warning"
	FlashError   FlashLevel = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   FlashLevel
	Message string
}

type Session struct {
	Token     string
	Username  string
	Role      Role
	CreatedAt time.Time
	Flashes   []Flash
}

// SessionStore keeps sessions in memory, keyed by an opaque random token.
// Idle sessions expire after the configured TTL.
type SessionStore struct {
	sessions *cache.LRUCache[Session]
}

func NewSessionStore(maxSessions int, ttl time.Duration) *SessionStore {
	return &SessionStore{sessions: cache.NewSlidingCache[Session](maxSessions, ttl)}
}

// Cache exposes the backing cache so it can be registered for cleanup.
func (s *SessionStore) Cache() *cache.LRUCache[Session] {
	return s.sessions
}

// Create starts a session for username with role and returns it.
func (s *SessionStore) Create(username string, role Role) Session {
	sess := Session{
		Token:     uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.sessions.Set(sess.Token, sess)
	return sess
}

func (s *SessionStore) Get(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	return s.sessions.Get(token)
}

func (s *SessionStore) Delete(token string) {
	s.sessions.Delete(token)
}

// AddFlash queues a message for the session. It is a no-op for unknown tokens.
func (s *SessionStore) AddFlash(token string, f Flash) {
	s.sessions.Update(token, func(sess Session) Session {
		sess.Flashes = append(sess.Flashes, f)
		return sess
	})
}

// PopFlashes returns and clears the queued messages.
func (s *SessionStore) PopFlashes(token string) []Flash {
	var out []Flash
	s.sessions.Update(token, func(sess Session) Session {
		out = sess.Flashes
		sess.Flashes = nil
		return sess
	})
	return out
}

func (s *SessionStore) Size() int {
	return s.sessions.Size()
}
