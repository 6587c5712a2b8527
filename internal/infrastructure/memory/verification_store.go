// Package memory holds process-local implementations for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/fallah-auth/internal/domain"
	"github.com/ErlanBelekov/fallah-auth/internal/repository"
)

// VerificationStore keeps pending codes in a map. Expired entries stay until
// they are looked up, overwritten or purged by the sweeper.
type VerificationStore struct {
	mu      sync.RWMutex
	pending map[string]domain.PendingVerification
	now     func() time.Time
}

var _ repository.VerificationStore = (*VerificationStore)(nil)

type Option func(*VerificationStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *VerificationStore) { s.now = now }
}

func NewVerificationStore(opts ...Option) *VerificationStore {
	s := &VerificationStore{
		pending: make(map[string]domain.PendingVerification),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *VerificationStore) Put(_ context.Context, phoneNumber, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[phoneNumber] = domain.PendingVerification{
		PhoneNumber: phoneNumber,
		Code:        code,
		ExpiresAt:   s.now().Add(ttl),
	}
	return nil
}

func (s *VerificationStore) Get(_ context.Context, phoneNumber string) (*domain.PendingVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[phoneNumber]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	return &p, nil
}

func (s *VerificationStore) Delete(_ context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, phoneNumber)
	return nil
}

func (s *VerificationStore) Consume(_ context.Context, phoneNumber, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[phoneNumber]
	if !ok || p.Code != code {
		return false, nil
	}
	delete(s.pending, phoneNumber)
	return true, nil
}

func (s *VerificationStore) IncrementAttempts(_ context.Context, phoneNumber string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[phoneNumber]
	if !ok {
		return 0, domain.ErrCodeNotFound
	}
	p.Attempts++
	s.pending[phoneNumber] = p
	return p.Attempts, nil
}

// List returns a snapshot ordered by expiry.
func (s *VerificationStore) List(_ context.Context) ([]domain.PendingVerification, error) {
	s.mu.RLock()
	out := make([]domain.PendingVerification, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

// PurgeExpired removes every entry whose code has expired and reports how
// many were dropped.
func (s *VerificationStore) PurgeExpired(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, p := range s.pending {
		if p.Expired(now) {
			delete(s.pending, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *VerificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
