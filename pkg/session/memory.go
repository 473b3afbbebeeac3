package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry keeps sessions in a process-local map.
type MemoryRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryRegistry creates a registry. A zero ttl keeps sessions until
// they are retired.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create implements Registry.
func (r *MemoryRegistry) Create(_ context.Context, s *Session) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := uuid.NewString()
	if _, exists := r.sessions[token]; exists {
		return "", fmt.Errorf("token collision for %s", token)
	}

	stored := s.Clone()
	stored.Token = token
	stored.CreatedAt = r.now()
	if r.ttl > 0 {
		stored.ExpiresAt = stored.CreatedAt.Add(r.ttl)
	}
	r.sessions[token] = stored
	return token, nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || s.Expired(r.now()) {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Retire implements Registry.
func (r *MemoryRegistry) Retire(_ context.Context, token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.sessions, token)
	if s.Expired(r.now()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Restore implements Registry. It fails if the token is already registered.
func (r *MemoryRegistry) Restore(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.Token]; exists {
		return fmt.Errorf("session %s is already registered", s.Token)
	}
	r.sessions[s.Token] = s.Clone()
	return nil
}

// Sweep implements Sweeper.
func (r *MemoryRegistry) Sweep(now time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Session
	for token, s := range r.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(r.sessions, token)
		}
	}
	return expired
}

// Len returns the number of registered sessions, expired or not.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
