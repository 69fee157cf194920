package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// NewStore opens the postgres store when databaseURL is set and falls back to
// a process-local store otherwise. Memories in the local store do not survive
// a restart.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		log.Printf("memory: DATABASE_URL not set, memories are kept in process")
		return NewInMemoryStore(), nil
	}
	s, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory: open postgres: %w", err)
	}
	return s, nil
}
