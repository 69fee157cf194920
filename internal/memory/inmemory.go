package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu           sync.RWMutex
	items        map[string]Memory
	instructions string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]Memory)}
}

func (s *InMemoryStore) List(_ context.Context) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Memory, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (Memory, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Memory{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[key]
	if !ok {
		return Memory{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemoryStore) Set(_ context.Context, key, value string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = Memory{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (s *InMemoryStore) Instructions(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instructions, nil
}

func (s *InMemoryStore) SetInstructions(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = text
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
