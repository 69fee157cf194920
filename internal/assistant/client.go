// Package assistant runs one realtime voice session: it owns the transport,
// the voice state machine, the message log and tool dispatch, and serializes
// every mutation on a single actor goroutine.
package assistant

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/memory"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/pubsub"
	"github.com/ent0n29/glassvoice/internal/realtime"
	"github.com/ent0n29/glassvoice/internal/session"
	"github.com/ent0n29/glassvoice/internal/sessionconfig"
	"github.com/ent0n29/glassvoice/internal/threads"
	"github.com/ent0n29/glassvoice/internal/tools"
)

var (
	ErrMissingAPIKey = errors.New("assistant: OPENAI_API_KEY is not set")
	ErrNotConnected  = errors.New("assistant: not connected")
	ErrClosed        = errors.New("assistant: client closed")
	ErrSuperseded    = errors.New("assistant: connect superseded by disconnect")
)

// Audio is the capture and playback side of the session.
type Audio interface {
	StartCapture(ctx context.Context, sink func(audio.CapturedFrame)) error
	StopCapture()
	RecordAppended(pcm []byte)
	CommitUtterance(label string)
	DiscardUtterance()
	Enqueue(pcm []byte) error
	Interrupt() error
	SetMuted(muted bool)
	NotifyWhenDrained(fn func())
}

type ConfigSource interface {
	Build(ctx context.Context) (realtime.SessionConfig, error)
}

type ToolRunner interface {
	Dispatch(ctx context.Context, call tools.Call) (tools.Result, bool)
	Reset()
}

type ThreadStore interface {
	CreateThread() threads.Thread
	ResumeThread(id string) ([]threads.Message, error)
	SaveMessages(msgs []threads.Message) error
	FinalizeActiveThread()
	ActiveThreadID() string
}

// ChangeSource publishes memory and instruction edits.
type ChangeSource interface {
	Subscribe() *pubsub.Subscription[memory.Change]
}

type Options struct {
	APIKey string
	URL    string
	Model  string
	Dialer *websocket.Dialer

	ConfigureGrace time.Duration
	ConfigDebounce time.Duration
	IntentGate     bool
	IntentTimeout  time.Duration
	Classifier     conversation.Classifier

	Config   ConfigSource
	Tools    ToolRunner
	Audio    Audio
	Threads  ThreadStore
	Changes  ChangeSource
	Sessions *session.Manager
	Metrics  *observability.Metrics
}

// Client is safe for concurrent use. Public methods post closures to the
// actor goroutine and wait for their result.
type Client struct {
	opts    Options
	mailbox chan func()
	quit    chan struct{}
	done    chan struct{}
	events  *pubsub.Broker[Event]
	updater *sessionconfig.Updater
	changes *pubsub.Subscription[memory.Change]

	closeOnce sync.Once

	// Everything below is owned by the actor goroutine.
	gen          uint64
	conn         *realtime.Conn
	early        []realtime.ServerEvent
	connection   conversation.Connection
	machine      *conversation.Machine
	configured   bool
	configSent   bool
	configSentAt time.Time
	graceTimer   *time.Timer
	sessionID    string
	lastDetail   string
	lastTouch    time.Time
	muted        bool

	captureCancel context.CancelFunc

	messages []threads.Message
	itemMsg  map[string]string
	replay   []threads.Message

	responseID        string
	cancelledResponse string
	requestedAt       time.Time
	firstAudioSeen    bool
	pendingCalls      map[string]struct{}
	toolTurnDone      bool

	awaitingIntent bool
	heldTranscript string
}

func New(opts Options) *Client {
	if opts.ConfigureGrace <= 0 {
		opts.ConfigureGrace = 500 * time.Millisecond
	}
	if opts.ConfigDebounce <= 0 {
		opts.ConfigDebounce = 500 * time.Millisecond
	}
	if opts.IntentTimeout <= 0 {
		opts.IntentTimeout = 300 * time.Millisecond
	}
	if opts.IntentGate && opts.Classifier == nil {
		opts.Classifier = conversation.HeuristicClassifier{}
	}

	c := &Client{
		opts:         opts,
		mailbox:      make(chan func(), 512),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		events:       pubsub.NewBroker[Event](64),
		connection:   conversation.Disconnected(),
		machine:      conversation.NewMachine(),
		itemMsg:      make(map[string]string),
		pendingCalls: make(map[string]struct{}),
	}
	c.machine.OnTransition = func(from, to conversation.VoiceState, ev conversation.Event) {
		opts.Metrics.ObserveVoiceTransition(string(from), string(to))
		log.Printf("assistant: voice %s -> %s (%s)", from, to, ev)
		c.publishState()
	}
	c.updater = sessionconfig.NewUpdater(opts.ConfigDebounce, c.pushConfig)

	go c.run()
	if opts.Changes != nil {
		c.changes = opts.Changes.Subscribe()
		go c.watchChanges(c.changes)
	}
	return c
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.mailbox:
			fn()
		}
	}
}

// post queues fn for the actor. It must not be called from the actor itself.
func (c *Client) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	case c.mailbox <- fn:
		return true
	}
}

// tryPost drops fn instead of waiting when the mailbox is full.
func (c *Client) tryPost(fn func()) bool {
	select {
	case <-c.quit:
		return false
	case c.mailbox <- fn:
		return true
	default:
		return false
	}
}

func (c *Client) call(fn func() error) error {
	errCh := make(chan error, 1)
	if !c.post(func() { errCh <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errCh:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Subscribe returns a feed of state, transcript and error events. Slow
// subscribers miss events rather than block the session.
func (c *Client) Subscribe() *pubsub.Subscription[Event] {
	return c.events.Subscribe()
}

// Snapshot returns a copy of the current session state.
func (c *Client) Snapshot() Snapshot {
	var snap Snapshot
	if err := c.call(func() error {
		snap = c.snapshotLocked()
		return nil
	}); err != nil {
		return Snapshot{Connection: conversation.Disconnected(), Voice: conversation.VoiceIdle}
	}
	return snap
}

func (c *Client) snapshotLocked() Snapshot {
	threadID := ""
	if c.opts.Threads != nil {
		threadID = c.opts.Threads.ActiveThreadID()
	}
	return Snapshot{
		Connection:       c.connection,
		Voice:            c.machine.State(),
		Configured:       c.configured,
		SessionID:        c.sessionID,
		ThreadID:         threadID,
		ResponseID:       c.responseID,
		PendingToolCalls: len(c.pendingCalls),
		Muted:            c.muted,
		Detail:           c.lastDetail,
		Messages:         append([]threads.Message(nil), c.messages...),
	}
}

// SessionID reports the registry id of the live session, if any.
func (c *Client) SessionID() string {
	return c.Snapshot().SessionID
}

// SettingsChanged schedules a debounced session.update when connected.
func (c *Client) SettingsChanged() {
	c.post(func() {
		if c.conn != nil && c.configSent {
			c.updater.Request()
		}
	})
}

func (c *Client) watchChanges(sub *pubsub.Subscription[memory.Change]) {
	for ch := range sub.C() {
		log.Printf("assistant: %s changed (%s), scheduling session.update", ch.Kind, ch.Key)
		c.SettingsChanged()
	}
}

// Close disconnects and stops the actor.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Disconnect()
		if errors.Is(err, ErrClosed) {
			err = nil
		}
		c.updater.Stop()
		if c.changes != nil {
			c.changes.Cancel()
		}
		close(c.quit)
		<-c.done
		c.events.Close()
	})
	return err
}
