// Package threads keeps the conversation history: an ordered set of threads,
// one of which may be active, persisted through a debounced writer.
package threads

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("threads: thread not found")
	ErrNoActiveThread = errors.New("threads: no active thread")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Final     bool      `json:"final"`
}

type Thread struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Title        string    `json:"title"`
	TitleDerived bool      `json:"title_derived"`
	Messages     []Message `json:"messages"`
}

func (t Thread) clone() Thread {
	t.Messages = append([]Message(nil), t.Messages...)
	return t
}

type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
}

// Backend stores the full ordered thread set as one snapshot.
type Backend interface {
	Name() string
	Load(ctx context.Context) ([]Thread, error)
	// Save replaces the stored set with threads.
	Save(ctx context.Context, threads []Thread) error
	Close() error
}
