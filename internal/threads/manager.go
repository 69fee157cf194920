package threads

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/glassvoice/internal/debounce"
	"github.com/ent0n29/glassvoice/internal/observability"
)

// Manager owns the thread set. All writes go through one debounced persist
// path; FinalizeActiveThread and DeleteThread flush immediately.
type Manager struct {
	mu       sync.Mutex
	threads  []*Thread
	activeID string

	backend Backend
	delay   time.Duration
	saver   *debounce.Trailing
	saveMu  sync.Mutex
	metrics *observability.Metrics
	now     func() time.Time
}

type Options struct {
	SaveDebounce time.Duration
	Metrics      *observability.Metrics
}

// NewManager loads existing threads. A load failure is logged and the manager
// starts empty.
func NewManager(ctx context.Context, backend Backend, opts Options) *Manager {
	m := &Manager{
		backend: backend,
		delay:   opts.SaveDebounce,
		saver:   debounce.New(),
		metrics: opts.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if m.delay < 0 {
		m.delay = 0
	}
	if backend == nil {
		return m
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		log.Printf("threads: load from %s failed, starting empty: %v", backend.Name(), err)
		return m
	}
	for i := range loaded {
		t := loaded[i]
		if len(t.Messages) == 0 {
			continue
		}
		m.threads = append(m.threads, &t)
	}
	log.Printf("threads: loaded %d threads from %s", len(m.threads), backend.Name())
	return m
}

// CreateThread starts a new active thread. A previously active thread is
// finalized first. Nothing is persisted until the thread has a message.
func (m *Manager) CreateThread() Thread {
	m.mu.Lock()
	flush := m.finalizeLocked()
	now := m.now()
	t := &Thread{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	m.threads = append(m.threads, t)
	m.activeID = t.ID
	out := t.clone()
	m.mu.Unlock()

	if flush {
		m.Flush()
	}
	return out
}

func (m *Manager) ActiveThreadID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// SaveMessages replaces the active thread's messages and schedules a persist.
func (m *Manager) SaveMessages(msgs []Message) error {
	m.mu.Lock()
	t := m.findLocked(m.activeID)
	if t == nil {
		m.mu.Unlock()
		return ErrNoActiveThread
	}
	t.Messages = append([]Message(nil), msgs...)
	t.UpdatedAt = m.now()
	if !t.TitleDerived && hasUserText(t.Messages) {
		t.Title = DeriveTitle(t.Messages, t.CreatedAt)
		t.TitleDerived = true
	}
	m.mu.Unlock()

	m.saver.Schedule(m.persist, m.delay)
	return nil
}

// FinalizeActiveThread closes the active thread. An empty thread is removed;
// otherwise its title is derived again. The set is flushed immediately.
func (m *Manager) FinalizeActiveThread() {
	m.mu.Lock()
	flush := m.finalizeLocked()
	m.mu.Unlock()
	if flush {
		m.Flush()
	}
}

func (m *Manager) finalizeLocked() bool {
	if m.activeID == "" {
		return false
	}
	id := m.activeID
	m.activeID = ""
	t := m.findLocked(id)
	if t == nil {
		return false
	}
	if len(t.Messages) == 0 {
		m.removeLocked(id)
		return true
	}
	t.Title = DeriveTitle(t.Messages, t.CreatedAt)
	t.TitleDerived = true
	return true
}

// ResumeThread makes a stored thread active and returns its history.
func (m *Manager) ResumeThread(id string) ([]Message, error) {
	m.mu.Lock()
	if m.activeID == id && id != "" {
		t := m.findLocked(id)
		msgs := append([]Message(nil), t.Messages...)
		m.mu.Unlock()
		return msgs, nil
	}
	target := m.findLocked(id)
	if target == nil {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	flush := m.finalizeLocked()
	m.activeID = id
	msgs := append([]Message(nil), target.Messages...)
	m.mu.Unlock()

	if flush {
		m.Flush()
	}
	return msgs, nil
}

func (m *Manager) DeleteThread(id string) error {
	m.mu.Lock()
	if m.findLocked(id) == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.removeLocked(id)
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()

	m.Flush()
	return nil
}

// List returns threads with at least one message, most recently updated first.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Summary, 0, len(m.threads))
	for _, t := range m.threads {
		if len(t.Messages) == 0 {
			continue
		}
		out = append(out, Summary{
			ID:           t.ID,
			Title:        t.Title,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
			MessageCount: len(t.Messages),
			Active:       t.ID == m.activeID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *Manager) Get(id string) (Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.findLocked(id)
	if t == nil {
		return Thread{}, ErrNotFound
	}
	return t.clone(), nil
}

// Flush cancels any pending debounced save and persists now.
func (m *Manager) Flush() {
	m.saver.Cancel()
	m.persist()
}

func (m *Manager) Close() error {
	m.FinalizeActiveThread()
	m.saver.Stop()
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}

func (m *Manager) persist() {
	if m.backend == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	snapshot := make([]Thread, 0, len(m.threads))
	for _, t := range m.threads {
		if len(t.Messages) == 0 {
			continue
		}
		snapshot = append(snapshot, t.clone())
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.backend.Save(ctx, snapshot); err != nil {
		m.metrics.ObserveThreadSave(m.backend.Name(), "error")
		log.Printf("threads: save to %s failed: %v", m.backend.Name(), err)
		return
	}
	m.metrics.ObserveThreadSave(m.backend.Name(), "ok")
}

func (m *Manager) findLocked(id string) *Thread {
	if id == "" {
		return nil
	}
	for _, t := range m.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (m *Manager) removeLocked(id string) {
	for i, t := range m.threads {
		if t.ID == id {
			m.threads = append(m.threads[:i], m.threads[i+1:]...)
			return
		}
	}
}
