package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("memory: not found")
	ErrEmptyKey = errors.New("memory: key is required")
)

// Memory is one remembered fact the assistant carries into every session.
type Memory struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds user memories and the freeform instruction addendum.
type Store interface {
	// List returns all memories ordered by key.
	List(ctx context.Context) ([]Memory, error)
	Get(ctx context.Context, key string) (Memory, error)
	Set(ctx context.Context, key, value string) error
	// Delete reports whether the key existed. Missing keys are not an error.
	Delete(ctx context.Context, key string) (bool, error)
	Instructions(ctx context.Context) (string, error)
	SetInstructions(ctx context.Context, text string) error
	Close() error
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
