package memory

import (
	"context"
	"sync"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/repository"
)

// StateStore keeps device state in process memory. Nothing survives a restart.
type StateStore struct {
	mu          sync.RWMutex
	credentials *domain.Credentials
	backStack   []string
}

// NewStateStore constructs an empty in-memory store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

func (s *StateStore) SaveCredentials(_ context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = &creds
	return nil
}

func (s *StateStore) LoadCredentials(_ context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credentials == nil {
		return domain.Credentials{}, repository.ErrNotFound
	}
	return *s.credentials, nil
}

func (s *StateStore) DeleteCredentials(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = nil
	return nil
}

func (s *StateStore) SaveBackStack(_ context.Context, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backStack = append([]string(nil), entries...)
	return nil
}

func (s *StateStore) LoadBackStack(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.backStack...), nil
}

func (s *StateStore) HealthCheck(context.Context) error {
	return nil
}

var _ port.DeviceStateStore = (*StateStore)(nil)
