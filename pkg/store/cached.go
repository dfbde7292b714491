package store

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore serves GetUser from a bounded LRU in front of another Store.
// Writes go through to the backing store and then update the cache.
type CachedStore struct {
	next  Store
	cache *lru.Cache[int64, User]
}

func NewCachedStore(next Store, entries int) (*CachedStore, error) {
	if next == nil {
		return nil, errors.New("backing store is required")
	}

	cache, err := lru.New[int64, User](entries)
	if err != nil {
		return nil, fmt.Errorf("create user cache: %w", err)
	}

	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) CreateUser(ctx context.Context, telegramID int64, username string) (User, error) {
	user, err := s.next.CreateUser(ctx, telegramID, username)
	if err != nil {
		return User{}, err
	}

	s.cache.Add(telegramID, user)
	return user, nil
}

func (s *CachedStore) GetUser(ctx context.Context, telegramID int64) (User, error) {
	if user, ok := s.cache.Get(telegramID); ok {
		return user, nil
	}

	user, err := s.next.GetUser(ctx, telegramID)
	if err != nil {
		return User{}, err
	}

	s.cache.Add(telegramID, user)
	return user, nil
}

// DeleteUser evicts the cached entry only after the backing delete, so a read
// racing the delete cannot leave the removed user cached.
func (s *CachedStore) DeleteUser(ctx context.Context, telegramID int64) error {
	err := s.next.DeleteUser(ctx, telegramID)
	s.cache.Remove(telegramID)
	return err
}

// Cached reports how many users are currently cached.
func (s *CachedStore) Cached() int {
	return s.cache.Len()
}

func (s *CachedStore) Close() {
	s.cache.Purge()
	s.next.Close()
}
