// internal/session/session.go
package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"opsdesk/internal/logger"
)

// Store holds live wizard sessions keyed by an opaque bearer token. Each
// operator gets one session per offer draft; sessions expire after the
// configured idle TTL and are swept by a background routine.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
}

type entry[T any] struct {
	value    T
	lastSeen time.Time
}

func NewStore[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
	}
}

// generateToken returns an opaque random session token.
func generateToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// Create registers a new session and returns its token.
func (s *Store[T]) Create(value T) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.entries[token] = &entry[T]{value: value, lastSeen: time.Now()}
	s.mu.Unlock()
	return token, nil
}

// Get looks up a session and refreshes its idle timer.
func (s *Store[T]) Get(token string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		var zero T
		return zero, false
	}
	if time.Since(e.lastSeen) > s.ttl {
		delete(s.entries, token)
		var zero T
		return zero, false
	}
	e.lastSeen = time.Now()
	return e.value, true
}

// Delete removes a session, e.g. after a successful submission.
func (s *Store[T]) Delete(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartCleanupRoutine periodically sweeps expired sessions.
func (s *Store[T]) StartCleanupRoutine(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			removed := s.sweep()
			if removed > 0 {
				logger.LogInfo("Session cleanup removed %d expired sessions", removed)
			}
		}
	}()
}

func (s *Store[T]) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, e := range s.entries {
		if time.Since(e.lastSeen) > s.ttl {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}
