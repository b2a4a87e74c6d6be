package authority

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mindhaven/immerse/internal/domain"
)

// MemorySessionStore keeps session records in process for single-instance
// mode. All methods return and store copies, never shared pointers.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	byUser   map[string]map[uuid.UUID]struct{}
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]*domain.Session),
		byUser:   make(map[string]map[uuid.UUID]struct{}),
	}
}

func (s *MemorySessionStore) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) Put(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	ids, ok := s.byUser[session.UserID]
	if !ok {
		ids = make(map[uuid.UUID]struct{})
		s.byUser[session.UserID] = ids
	}
	ids[session.ID] = struct{}{}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	if ids, ok := s.byUser[session.UserID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
	return nil
}

func (s *MemorySessionStore) ListByUser(_ context.Context, userID string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]*domain.Session, 0, len(ids))
	for id := range ids {
		if session, ok := s.sessions[id]; ok {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}

func (s *MemorySessionStore) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out, nil
}

// MemoryDeviceStore keeps device registrations in process.
type MemoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{devices: make(map[string]domain.Device)}
}

func (s *MemoryDeviceStore) Get(_ context.Context, id string) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	device, ok := s.devices[id]
	if !ok {
		return nil, nil
	}
	return &device, nil
}

func (s *MemoryDeviceStore) Put(_ context.Context, device *domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = *device
	return nil
}
