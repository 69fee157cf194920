package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/protocol"
)

var (
	ErrNoDevice   = errors.New("device: no device attached")
	ErrDetached   = errors.New("device: device detached")
	ErrMicBusy    = errors.New("device: microphone already started")
	ErrPhotoEmpty = errors.New("device: photo result has no image")
)

// Controller receives the session actions a device requests.
type Controller interface {
	Connect(ctx context.Context, threadID string) error
	Disconnect() error
	StartListening() error
	StopListening() error
	ForceResponse() error
	SetMuted(muted bool) error
}

type BridgeOptions struct {
	OutboundQueue int
	MicQueue      int
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	// PacePlayback makes Play block for the chunk's duration so drain
	// notifications track what the device is actually playing.
	PacePlayback bool
	Metrics      *observability.Metrics
}

// Bridge connects one glasses companion app at a time. It serves as the
// microphone, speaker and camera of the assistant.
type Bridge struct {
	opts BridgeOptions

	mu         sync.Mutex
	link       *link
	mic        chan audio.Frame
	pending    map[string]chan protocol.PhotoResult
	controller Controller
	audioSeq   int
	playStop   chan struct{}
}

type link struct {
	id   string
	conn *websocket.Conn
	out  chan any
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func NewBridge(opts BridgeOptions) *Bridge {
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = 256
	}
	if opts.MicQueue <= 0 {
		opts.MicQueue = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 120 * time.Second
	}
	return &Bridge{
		opts:     opts,
		pending:  make(map[string]chan protocol.PhotoResult),
		playStop: make(chan struct{}),
	}
}

func (b *Bridge) SetController(c Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.controller = c
}

// Attached reports whether a device is connected.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link != nil
}

// Serve runs the device connection until it closes or ctx ends. A newer
// connection replaces the current one.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn) {
	l := &link{
		id:   uuid.NewString(),
		conn: conn,
		out:  make(chan any, b.opts.OutboundQueue),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	prev := b.link
	b.link = l
	b.mu.Unlock()
	if prev != nil {
		log.Printf("device: replacing link %s with %s", prev.id, l.id)
		b.detach(prev)
	}
	log.Printf("device: attached link %s", l.id)
	b.opts.Metrics.ObserveSessionEvent("device_attached")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		b.writeLoop(ctx, l)
	}()

	controls := make(chan protocol.DeviceControl, 16)
	controlDone := make(chan struct{})
	go func() {
		defer close(controlDone)
		b.controlLoop(ctx, controls)
	}()

	b.readLoop(ctx, l, controls)

	cancel()
	close(controls)
	b.detach(l)
	<-writerDone
	<-controlDone
	log.Printf("device: detached link %s", l.id)
	b.opts.Metrics.ObserveSessionEvent("device_detached")
}

func (b *Bridge) readLoop(ctx context.Context, l *link, controls chan<- protocol.DeviceControl) {
	conn := l.conn
	conn.SetReadLimit(4 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(b.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.opts.ReadTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-l.done:
				default:
					log.Printf("device: read failed on link %s: %v", l.id, err)
				}
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(b.opts.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseDeviceMessage(data)
		if err != nil {
			b.opts.Metrics.ObserveDeviceMessage("inbound", "invalid")
			b.enqueue(l, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_device_message",
				Detail: err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.DeviceAudioChunk:
			b.opts.Metrics.ObserveDeviceMessage("inbound", string(msg.Type))
			b.handleAudio(msg)
		case protocol.DeviceControl:
			b.opts.Metrics.ObserveDeviceMessage("inbound", string(msg.Type))
			select {
			case controls <- msg:
			case <-ctx.Done():
				return
			}
		case protocol.PhotoResult:
			b.opts.Metrics.ObserveDeviceMessage("inbound", string(msg.Type))
			b.handlePhotoResult(msg)
		}
	}
}

func (b *Bridge) writeLoop(ctx context.Context, l *link) {
	ping := time.NewTicker(b.opts.ReadTimeout / 3)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-l.done:
			return
		case <-ping.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.opts.WriteTimeout)); err != nil {
				l.close()
				return
			}
		case msg := <-l.out:
			_ = l.conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout))
			if err := l.conn.WriteJSON(msg); err != nil {
				log.Printf("device: write failed on link %s: %v", l.id, err)
				l.close()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				b.opts.Metrics.ObserveDeviceMessage("outbound", string(t))
			}
		}
	}
}

func (b *Bridge) controlLoop(ctx context.Context, controls <-chan protocol.DeviceControl) {
	for msg := range controls {
		b.mu.Lock()
		c := b.controller
		b.mu.Unlock()
		if c == nil {
			b.Send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "unavailable", Detail: "assistant not ready"})
			continue
		}

		var err error
		switch msg.Action {
		case protocol.ActionConnect:
			err = c.Connect(ctx, msg.ThreadID)
		case protocol.ActionDisconnect:
			err = c.Disconnect()
		case protocol.ActionStartListening:
			err = c.StartListening()
		case protocol.ActionStopListening:
			err = c.StopListening()
		case protocol.ActionForceResponse:
			err = c.ForceResponse()
		case protocol.ActionMute, protocol.ActionUnmute:
			err = c.SetMuted(msg.Action == protocol.ActionMute)
		}
		if err != nil {
			log.Printf("device: %s failed: %v", msg.Action, err)
			b.Send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   msg.Action + "_failed",
				Detail: err.Error(),
			})
		}
	}
}

func (b *Bridge) detach(l *link) {
	l.close()

	b.mu.Lock()
	if b.link != l {
		b.mu.Unlock()
		return
	}
	b.link = nil
	if b.mic != nil {
		close(b.mic)
		b.mic = nil
	}
	pending := b.pending
	b.pending = make(map[string]chan protocol.PhotoResult)
	b.mu.Unlock()

	for id, ch := range pending {
		ch <- protocol.PhotoResult{RequestID: id, Error: ErrDetached.Error()}
	}
}

// Send queues msg for the attached device. It reports false when no device
// is attached or the queue is full.
func (b *Bridge) Send(msg any) bool {
	b.mu.Lock()
	l := b.link
	b.mu.Unlock()
	if l == nil {
		return false
	}
	return b.enqueue(l, msg)
}

func (b *Bridge) enqueue(l *link, msg any) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.out <- msg:
		return true
	default:
		b.opts.Metrics.ObserveDropped("device", "queue_full")
		return false
	}
}

func (b *Bridge) handleAudio(msg protocol.DeviceAudioChunk) {
	pcm, err := msg.PCM()
	if err != nil {
		b.opts.Metrics.ObserveDropped("device_mic", "bad_base64")
		return
	}
	frame := audio.Frame{PCM: pcm, SampleRate: msg.SampleRate, Channels: msg.Channels}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mic == nil {
		return
	}
	select {
	case b.mic <- frame:
	default:
		b.opts.Metrics.ObserveDropped("device_mic", "queue_full")
	}
}

func (b *Bridge) handlePhotoResult(msg protocol.PhotoResult) {
	b.mu.Lock()
	ch, ok := b.pending[msg.RequestID]
	delete(b.pending, msg.RequestID)
	b.mu.Unlock()
	if !ok {
		log.Printf("device: photo_result for unknown request %s", msg.RequestID)
		return
	}
	ch <- msg
}

// Start implements audio.Microphone. Frames flow until ctx ends or the device
// detaches.
func (b *Bridge) Start(ctx context.Context) (<-chan audio.Frame, error) {
	b.mu.Lock()
	if b.link == nil {
		b.mu.Unlock()
		return nil, &audio.DeviceError{Op: "mic_start", Err: ErrNoDevice}
	}
	if b.mic != nil {
		b.mu.Unlock()
		return nil, &audio.DeviceError{Op: "mic_start", Err: ErrMicBusy}
	}
	ch := make(chan audio.Frame, b.opts.MicQueue)
	b.mic = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.mic == ch {
			close(ch)
			b.mic = nil
		}
		b.mu.Unlock()
	}()
	return ch, nil
}

// Play implements audio.Speaker.
func (b *Bridge) Play(pcm []byte) error {
	b.mu.Lock()
	l := b.link
	b.audioSeq++
	seq := b.audioSeq
	stop := b.playStop
	b.mu.Unlock()
	if l == nil {
		return ErrNoDevice
	}
	if !b.enqueue(l, protocol.NewAssistantAudioChunk(seq, audio.WireSampleRate, pcm)) {
		return fmt.Errorf("device: audio chunk %d dropped", seq)
	}
	if !b.opts.PacePlayback {
		return nil
	}
	d := time.Duration(len(pcm)/2) * time.Second / audio.WireSampleRate
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	case <-l.done:
	}
	return nil
}

// Stop implements audio.Speaker. The device drops whatever it has buffered.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	close(b.playStop)
	b.playStop = make(chan struct{})
	l := b.link
	b.mu.Unlock()
	if l == nil {
		return nil
	}
	b.enqueue(l, protocol.PlaybackStop{Type: protocol.TypePlaybackStop, Reason: "interrupted"})
	return nil
}

// Available implements tools.Camera.
func (b *Bridge) Available() bool { return b.Attached() }

// CapturePhoto asks the device for a photo and waits for the matching
// photo_result.
func (b *Bridge) CapturePhoto(ctx context.Context) (Photo, error) {
	id := uuid.NewString()
	ch := make(chan protocol.PhotoResult, 1)

	b.mu.Lock()
	l := b.link
	if l == nil {
		b.mu.Unlock()
		return Photo{}, &audio.DeviceError{Op: "capture_photo", Err: ErrNoDevice}
	}
	b.pending[id] = ch
	b.mu.Unlock()

	if !b.enqueue(l, protocol.CapturePhoto{Type: protocol.TypeCapturePhoto, RequestID: id}) {
		b.forget(id)
		return Photo{}, &audio.DeviceError{Op: "capture_photo", Err: errors.New("outbound queue full")}
	}

	select {
	case <-ctx.Done():
		b.forget(id)
		return Photo{}, ctx.Err()
	case res := <-ch:
		if res.Error != "" {
			return Photo{}, &audio.DeviceError{Op: "capture_photo", Err: errors.New(res.Error)}
		}
		data, err := res.Image()
		if err != nil {
			return Photo{}, fmt.Errorf("decode photo: %w", err)
		}
		if len(data) == 0 {
			return Photo{}, ErrPhotoEmpty
		}
		return Photo{Data: data, ContentType: res.ContentType, CapturedAt: time.Now().UTC()}, nil
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.PlaybackStop:
		return m.Type, true
	case protocol.CapturePhoto:
		return m.Type, true
	case protocol.StateEvent:
		return m.Type, true
	case protocol.TranscriptEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
