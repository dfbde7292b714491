package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps users in process memory. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]User
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, telegramID int64, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[telegramID]; ok {
		return User{}, ErrAlreadyExists
	}

	user := User{
		ID:         uuid.New(),
		TelegramID: telegramID,
		Username:   username,
		CreatedAt:  s.now(),
	}
	s.users[telegramID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(_ context.Context, telegramID int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[telegramID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[telegramID]; !ok {
		return ErrNotFound
	}
	delete(s.users, telegramID)
	return nil
}

func (s *MemoryStore) Close() {}
