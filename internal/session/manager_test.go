package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	var active atomic.Int32
	m.SetActiveHook(func(n int) { active.Store(int32(n)) })

	s := m.Create(State{Connection: "connecting", Voice: "idle"})
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}
	if got := active.Load(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Connection != "connecting" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if got := active.Load(); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
	if _, err := m.End("missing"); err != ErrNotFound {
		t.Fatalf("End(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerUpdateAndInterrupt(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create(State{Connection: "connecting"})
	if err := m.Update(s.ID, State{Connection: "connected", Voice: "speaking", Configured: true, ResponseID: "resp_1"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := m.Interrupt(s.ID); err != nil {
		t.Fatalf("Interrupt() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ResponseID != "" {
		t.Fatalf("ResponseID = %q, want empty", got.ResponseID)
	}
	if got.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", got.InterruptionCount)
	}
	if !got.Configured || got.Voice != "speaking" {
		t.Fatalf("unexpected session state: %+v", got)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })
	s := m.Create(State{Connection: "connected"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired id = %q, want %q", id, s.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire session")
	}
	if got := m.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", got)
	}
}
