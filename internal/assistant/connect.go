package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/realtime"
	"github.com/ent0n29/glassvoice/internal/session"
	"github.com/ent0n29/glassvoice/internal/threads"
)

// connHandler tags transport callbacks with the generation they belong to.
type connHandler struct {
	c   *Client
	gen uint64
}

func (h connHandler) HandleEvent(ev realtime.ServerEvent) {
	h.c.post(func() { h.c.handleEvent(h.gen, ev) })
}

func (h connHandler) HandleClose(err error) {
	h.c.post(func() { h.c.handleTransportClose(h.gen, err) })
}

// Connect opens a realtime session. A non-empty threadID resumes that thread;
// otherwise a new thread is started. Connecting while already connecting or
// connected is a no-op.
func (c *Client) Connect(ctx context.Context, threadID string) error {
	var (
		gen     uint64
		proceed bool
	)
	err := c.call(func() error {
		if c.connection.State == conversation.ConnConnecting || c.connection.State == conversation.ConnConnected {
			return nil
		}
		if strings.TrimSpace(c.opts.APIKey) == "" {
			c.connection = conversation.Failed("missing API key")
			c.lastDetail = ErrMissingAPIKey.Error()
			c.publishState()
			return ErrMissingAPIKey
		}
		if err := c.openThread(threadID); err != nil {
			return err
		}

		c.gen++
		gen = c.gen
		c.connection = conversation.Connecting()
		c.configured, c.configSent = false, false
		c.lastDetail = ""
		c.early = nil
		c.resetResponse()
		if c.opts.Tools != nil {
			c.opts.Tools.Reset()
		}
		c.publishState()
		proceed = true
		return nil
	})
	if err != nil || !proceed {
		return err
	}

	conn, dialErr := realtime.Dial(ctx, realtime.Options{
		URL:     c.opts.URL,
		APIKey:  c.opts.APIKey,
		Model:   c.opts.Model,
		Dialer:  c.opts.Dialer,
		Metrics: c.opts.Metrics,
	}, connHandler{c: c, gen: gen})

	return c.call(func() error {
		if gen != c.gen || c.connection.State != conversation.ConnConnecting {
			if conn != nil {
				_ = conn.Close()
			}
			return ErrSuperseded
		}
		if dialErr != nil {
			log.Printf("assistant: connect failed: %v", dialErr)
			c.opts.Metrics.ObserveProviderError("openai", "dial")
			c.fail(dialErr.Error())
			return fmt.Errorf("connect: %w", dialErr)
		}
		c.conn = conn
		c.opts.Metrics.ObserveSessionEvent("connected")
		c.registerSession()
		c.graceTimer = time.AfterFunc(c.opts.ConfigureGrace, func() {
			c.post(func() { c.onConfigureGrace(gen) })
		})
		early := c.early
		c.early = nil
		for _, ev := range early {
			c.handleEvent(gen, ev)
		}
		return nil
	})
}

func (c *Client) openThread(threadID string) error {
	c.messages = nil
	c.replay = nil
	c.itemMsg = make(map[string]string)
	if c.opts.Threads == nil {
		return nil
	}
	if strings.TrimSpace(threadID) == "" {
		c.opts.Threads.CreateThread()
		return nil
	}
	msgs, err := c.opts.Threads.ResumeThread(threadID)
	if err != nil {
		return fmt.Errorf("resume thread %s: %w", threadID, err)
	}
	c.messages = msgs
	c.replay = append([]threads.Message(nil), msgs...)
	return nil
}

// Disconnect closes the session from any state. Calling it again is a no-op.
func (c *Client) Disconnect() error {
	return c.call(func() error {
		c.teardown()
		if c.connection.State != conversation.ConnDisconnected {
			c.connection = conversation.Disconnected()
			c.lastDetail = ""
			c.publishState()
		}
		return nil
	})
}

// teardown releases everything tied to the current connection and moves the
// generation on so late results are dropped.
func (c *Client) teardown() {
	live := c.conn != nil || c.connection.Live()
	c.gen++
	c.stopGraceTimer()
	c.updater.Cancel()
	c.stopCapture()
	if c.opts.Audio != nil {
		if err := c.opts.Audio.Interrupt(); err != nil {
			log.Printf("assistant: %v", err)
		}
		c.opts.Audio.DiscardUtterance()
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.opts.Metrics.ObserveSessionEvent("disconnected")
	}
	c.early = nil
	c.replay = nil
	c.configured, c.configSent = false, false
	c.resetResponse()
	c.machine.Apply(conversation.EventReset)
	if live {
		c.finalizeThread()
	}
	c.endSession()
}

func (c *Client) fail(message string) {
	c.teardown()
	c.connection = conversation.Failed(message)
	c.lastDetail = message
	c.publishState()
}

func (c *Client) handleTransportClose(gen uint64, err error) {
	if gen != c.gen || err == nil {
		return
	}
	log.Printf("assistant: transport closed: %v", err)
	c.opts.Metrics.ObserveProviderError("openai", "transport")
	c.machine.Apply(conversation.EventTransportError)
	c.fail(err.Error())
	c.publish(Event{Kind: EventError, Code: "transport_error", Detail: err.Error()})
}

func (c *Client) onConfigureGrace(gen uint64) {
	if gen != c.gen || c.conn == nil || c.configSent {
		return
	}
	log.Printf("assistant: session.created not received after %s, configuring anyway", c.opts.ConfigureGrace)
	c.markConnected()
	c.configure()
}

func (c *Client) markConnected() {
	if c.connection.State == conversation.ConnConnected {
		return
	}
	c.connection = conversation.Connected()
	c.publishState()
}

func (c *Client) stopGraceTimer() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}

// configure sends the initial session.update once per connection.
func (c *Client) configure() {
	if c.configSent {
		return
	}
	c.configSent = true
	c.stopGraceTimer()
	gen := c.gen
	go func() {
		cfg, err := c.buildConfig()
		c.post(func() {
			if gen != c.gen || c.conn == nil {
				return
			}
			if err != nil {
				log.Printf("assistant: build session config: %v", err)
				c.publish(Event{Kind: EventError, Code: "config_error", Detail: err.Error()})
				return
			}
			c.configSentAt = time.Now()
			c.send(realtime.NewSessionUpdate(cfg))
			c.replayHistory()
		})
	}()
}

// replayHistory seeds the new session with the resumed thread, in order.
func (c *Client) replayHistory() {
	msgs := c.replay
	c.replay = nil
	sent := 0
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if !c.send(realtime.NewMessageItem(string(m.Role), text, "")) {
			return
		}
		sent++
	}
	if sent > 0 {
		log.Printf("assistant: replayed %d messages from thread %s", sent, c.opts.Threads.ActiveThreadID())
	}
}

// pushConfig runs on the debounce timer goroutine.
func (c *Client) pushConfig() {
	var gen uint64
	ok := c.call(func() error {
		if c.conn == nil || !c.configSent {
			return ErrNotConnected
		}
		gen = c.gen
		return nil
	}) == nil
	if !ok {
		return
	}
	cfg, err := c.buildConfig()
	if err != nil {
		log.Printf("assistant: rebuild session config: %v", err)
		return
	}
	c.post(func() {
		if gen != c.gen || c.conn == nil {
			return
		}
		log.Printf("assistant: pushing session.update after settings change")
		c.configSentAt = time.Now()
		c.send(realtime.NewSessionUpdate(cfg))
	})
}

func (c *Client) buildConfig() (realtime.SessionConfig, error) {
	if c.opts.Config == nil {
		return realtime.SessionConfig{}, errors.New("no session config source")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.opts.Config.Build(ctx)
}

func (c *Client) send(ev realtime.ClientEvent) bool {
	if c.conn == nil {
		return false
	}
	if err := c.conn.Send(ev); err != nil {
		if !errors.Is(err, realtime.ErrClosed) {
			log.Printf("assistant: send %s: %v", ev.EventType(), err)
		}
		return false
	}
	return true
}

func (c *Client) registerSession() {
	if c.opts.Sessions == nil {
		return
	}
	s := c.opts.Sessions.Create(c.sessionState())
	c.sessionID = s.ID
	c.lastTouch = time.Now()
	c.opts.Metrics.ObserveSessionEvent("created")
}

func (c *Client) endSession() {
	if c.opts.Sessions == nil || c.sessionID == "" {
		return
	}
	if _, err := c.opts.Sessions.End(c.sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("assistant: end session: %v", err)
	}
	c.opts.Metrics.ObserveSessionEvent("ended")
	c.sessionID = ""
}

// touchSession marks audio activity, at most once a second.
func (c *Client) touchSession() {
	if c.opts.Sessions == nil || c.sessionID == "" {
		return
	}
	if time.Since(c.lastTouch) < time.Second {
		return
	}
	c.lastTouch = time.Now()
	_ = c.opts.Sessions.Touch(c.sessionID)
}

func (c *Client) sessionState() session.State {
	threadID := ""
	if c.opts.Threads != nil {
		threadID = c.opts.Threads.ActiveThreadID()
	}
	return session.State{
		Connection: c.connection.String(),
		Voice:      string(c.machine.State()),
		Configured: c.configured,
		ThreadID:   threadID,
		ResponseID: c.responseID,
	}
}

func (c *Client) publishState() {
	st := State{
		Connection: c.connection,
		Voice:      c.machine.State(),
		Configured: c.configured,
		Detail:     c.lastDetail,
	}
	if c.opts.Threads != nil {
		st.ThreadID = c.opts.Threads.ActiveThreadID()
	}
	if c.opts.Sessions != nil && c.sessionID != "" {
		_ = c.opts.Sessions.Update(c.sessionID, c.sessionState())
	}
	c.publish(Event{Kind: EventState, State: st})
}

func (c *Client) publish(ev Event) {
	c.events.Publish(ev)
}
