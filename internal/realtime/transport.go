package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/observability"
)

const DefaultURL = "wss://api.openai.com/v1/realtime"

var (
	ErrClosed    = errors.New("realtime: connection closed")
	ErrQueueFull = errors.New("realtime: outbound queue full")
)

// Handler receives inbound traffic from the read loop. Calls arrive on one
// goroutine, in wire order.
type Handler interface {
	HandleEvent(ev ServerEvent)
	// HandleClose is called exactly once when the read loop ends. err is nil
	// when the close was initiated locally.
	HandleClose(err error)
}

type Options struct {
	URL          string
	APIKey       string
	Model        string
	Dialer       *websocket.Dialer
	Header       http.Header
	QueueSize    int
	WriteTimeout time.Duration
	PingInterval time.Duration
	Metrics      *observability.Metrics
}

type outboundFrame struct {
	eventType string
	payload   []byte
}

// Conn is one live websocket to the realtime API.
type Conn struct {
	ws      *websocket.Conn
	handler Handler
	metrics *observability.Metrics

	out     chan outboundFrame
	done    chan struct{}
	writerD chan struct{}

	writeTimeout time.Duration
	pingInterval time.Duration

	closing   atomic.Bool
	closeOnce sync.Once
	errOnce   sync.Once
}

// DialURL returns the websocket URL with the model query parameter set.
func DialURL(base, model string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	if model = strings.TrimSpace(model); model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial opens the websocket and starts the reader and writer goroutines.
func Dial(ctx context.Context, opts Options, h Handler) (*Conn, error) {
	if h == nil {
		return nil, errors.New("realtime: nil handler")
	}
	target, err := DialURL(opts.URL, opts.Model)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	for k, vs := range opts.Header {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	headers.Set("Authorization", "Bearer "+opts.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}
	c := &Conn{
		ws:           ws,
		handler:      h,
		metrics:      opts.Metrics,
		out:          make(chan outboundFrame, queue),
		done:         make(chan struct{}),
		writerD:      make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = 5 * time.Second
	}
	if c.pingInterval <= 0 {
		c.pingInterval = 20 * time.Second
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// Send encodes ev and queues it for the writer. Encoding failures are logged
// and the event is dropped.
func (c *Conn) Send(ev ClientEvent) error {
	if c == nil {
		return ErrClosed
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("realtime: dropping %s: marshal failed: %v", ev.EventType(), err)
		return fmt.Errorf("marshal %s: %w", ev.EventType(), err)
	}
	frame := outboundFrame{eventType: ev.EventType(), payload: payload}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- frame:
		return nil
	default:
		c.metrics.ObserveDropped("realtime", "queue_full")
		log.Printf("realtime: outbound queue full, dropping %s", frame.eventType)
		return ErrQueueFull
	}
}

// Close sends a normal-closure frame and closes the socket. Idempotent; it
// waits for the writer but not for the reader.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
	})
	<-c.writerD
	return nil
}

func (c *Conn) writeLoop() {
	defer close(c.writerD)
	ping := time.NewTicker(c.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.flushOnShutdown()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			_ = c.ws.Close()
			return
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout)); err != nil {
				c.failWrite(err)
				return
			}
		case frame := <-c.out:
			if err := c.writeFrame(frame); err != nil {
				c.failWrite(err)
				return
			}
		}
	}
}

// flushOnShutdown writes frames queued before Close so a trailing
// response.cancel or conversation item still reaches the server.
func (c *Conn) flushOnShutdown() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 16 && time.Now().Before(deadline); i++ {
		select {
		case frame := <-c.out:
			if err := c.writeFrame(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeFrame(frame outboundFrame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame.payload); err != nil {
		return err
	}
	c.metrics.ObserveRealtimeMessage("out", frame.eventType)
	return nil
}

func (c *Conn) failWrite(err error) {
	log.Printf("realtime: write failed: %v", err)
	// Closing the socket unblocks the reader, which reports the failure.
	_ = c.ws.Close()
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.reportClose(err)
			return
		}
		ev, err := ParseServerEvent(data)
		if err != nil {
			if errors.Is(err, ErrUnsupportedType) {
				continue
			}
			log.Printf("realtime: %v", err)
			continue
		}
		c.metrics.ObserveRealtimeMessage("in", ev.EventType())
		c.handler.HandleEvent(ev)
	}
}

func (c *Conn) reportClose(err error) {
	c.errOnce.Do(func() {
		if c.closing.Load() {
			c.handler.HandleClose(nil)
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			err = fmt.Errorf("%w: server closed the session", ErrClosed)
		}
		c.handler.HandleClose(err)
		// Release the writer so Close callers don't block.
		c.closeOnce.Do(func() { close(c.done) })
	})
}
