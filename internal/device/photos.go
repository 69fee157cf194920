package device

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrPhotoNotFound = errors.New("device: photo not found")

type Photo struct {
	ID          string    `json:"id"`
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	CapturedAt  time.Time `json:"captured_at"`
}

// PhotoStore keeps the most recent captured photos in memory, evicting the
// oldest once Limit is reached.
type PhotoStore struct {
	mu     sync.RWMutex
	limit  int
	order  []string
	photos map[string]Photo
}

func NewPhotoStore(limit int) *PhotoStore {
	if limit <= 0 {
		limit = 32
	}
	return &PhotoStore{limit: limit, photos: make(map[string]Photo)}
}

// Put stores p and returns its id, assigning one when empty.
func (s *PhotoStore) Put(p Photo) string {
	if p.ID == "" {
		p.ID = "photo_" + uuid.NewString()
	}
	if p.CapturedAt.IsZero() {
		p.CapturedAt = time.Now().UTC()
	}
	if p.ContentType == "" {
		p.ContentType = "image/jpeg"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.photos[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.photos[p.ID] = p
	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.photos, oldest)
	}
	return p.ID
}

func (s *PhotoStore) Get(id string) (Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[id]
	if !ok {
		return Photo{}, ErrPhotoNotFound
	}
	return p, nil
}

func (s *PhotoStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}
