package wallet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStore keeps established sessions in memory with a TTL. It replaces
// ad-hoc per-module session maps with one injected store that owns expiry and
// eviction.
type SessionStore struct {
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session

	stop chan struct{}
	once sync.Once
}

// NewSessionStore creates a store evicting sessions ttl after establishment.
// A background janitor removes expired entries once a minute.
func NewSessionStore(ttl time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]Session),
		stop:     make(chan struct{}),
	}
	go s.janitor(time.Minute)
	return s
}

// Put stores a session, stamping expiry from the store's TTL when the session
// carries none.
func (s *SessionStore) Put(session Session) {
	if session.ExpiresAt.IsZero() && s.ttl > 0 {
		session.ExpiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.sessions[session.UserID] = session
	s.mu.Unlock()
}

// ActiveSession returns the user's session if present and not expired.
// An expired session is evicted on read.
func (s *SessionStore) ActiveSession(ctx context.Context, userID string) (Session, bool, error) {
	s.mu.RLock()
	session, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if session.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, userID)
		s.mu.Unlock()
		return Session{}, false, nil
	}
	return session, true, nil
}

// Disconnect removes the user's session.
func (s *SessionStore) Disconnect(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *SessionStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := s.now()
			evicted := 0
			s.mu.Lock()
			for userID, session := range s.sessions {
				if session.Expired(now) {
					delete(s.sessions, userID)
					evicted++
				}
			}
			s.mu.Unlock()
			if evicted > 0 {
				s.logger.Debug("evicted expired wallet sessions", zap.Int("count", evicted))
			}
		}
	}
}
