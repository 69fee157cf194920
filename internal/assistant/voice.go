package assistant

import (
	"context"
	"log"
	"time"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/realtime"
)

// StartListening opens the microphone and moves idle to listening. While the
// assistant is speaking it interrupts playback instead.
func (c *Client) StartListening() error {
	return c.call(func() error {
		if !c.ready() {
			return ErrNotConnected
		}
		if c.machine.State() == conversation.VoiceSpeaking {
			c.bargeIn("user")
			return nil
		}
		if !c.machine.Can(conversation.EventStartListening) {
			return &conversation.InvalidTransitionError{From: c.machine.State(), Event: conversation.EventStartListening}
		}
		if err := c.startCapture(); err != nil {
			return err
		}
		c.heldTranscript = ""
		c.awaitingIntent = false
		c.send(realtime.NewInputAudioClear())
		c.machine.Apply(conversation.EventStartListening)
		return nil
	})
}

// StopListening ends the utterance: the buffer is committed and a response
// requested.
func (c *Client) StopListening() error {
	return c.call(func() error {
		return c.endUtterance(conversation.EventStopListening)
	})
}

// ForceResponse asks for a response to whatever has been said so far,
// bypassing the intent gate.
func (c *Client) ForceResponse() error {
	return c.call(func() error {
		return c.endUtterance(conversation.EventForceResponse)
	})
}

// SetMuted silences assistant audio. Muting drops whatever is queued; the
// setting outlives the connection.
func (c *Client) SetMuted(muted bool) error {
	return c.call(func() error {
		if c.muted == muted {
			return nil
		}
		c.muted = muted
		if c.opts.Audio != nil {
			c.opts.Audio.SetMuted(muted)
		}
		log.Printf("assistant: playback muted=%t", muted)
		c.publishState()
		return nil
	})
}

func (c *Client) endUtterance(ev conversation.Event) error {
	if !c.ready() {
		return ErrNotConnected
	}
	if !c.machine.Can(ev) {
		return &conversation.InvalidTransitionError{From: c.machine.State(), Event: ev}
	}
	c.awaitingIntent = false
	c.heldTranscript = ""
	c.send(realtime.NewInputAudioCommit())
	c.markRequested()
	c.send(realtime.NewResponseCreate())
	c.machine.Apply(ev)
	return nil
}

// markRequested starts the first-audio latency clock for a user turn.
func (c *Client) markRequested() {
	c.requestedAt = time.Now()
	c.firstAudioSeen = false
}

func (c *Client) ready() bool {
	return c.conn != nil && c.connection.State == conversation.ConnConnected
}

// startCapture keeps the microphone running for the rest of the connection so
// speech during playback can barge in.
func (c *Client) startCapture() error {
	if c.opts.Audio == nil || c.captureCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	gen := c.gen
	err := c.opts.Audio.StartCapture(ctx, func(f audio.CapturedFrame) {
		// Never block the capture goroutine on a busy actor.
		if !c.tryPost(func() { c.onCapturedFrame(gen, f) }) {
			c.opts.Metrics.ObserveDropped("capture", "mailbox_full")
		}
	})
	if err != nil {
		cancel()
		log.Printf("assistant: start capture: %v", err)
		return err
	}
	c.captureCancel = cancel
	return nil
}

func (c *Client) stopCapture() {
	if c.captureCancel == nil {
		return
	}
	c.captureCancel()
	c.captureCancel = nil
	if c.opts.Audio != nil {
		c.opts.Audio.StopCapture()
	}
}

func (c *Client) onCapturedFrame(gen uint64, f audio.CapturedFrame) {
	if gen != c.gen || c.conn == nil {
		return
	}
	switch c.machine.State() {
	case conversation.VoiceListening:
		if c.send(realtime.NewInputAudioAppend(f.PCM)) && c.opts.Audio != nil {
			c.opts.Audio.RecordAppended(f.PCM)
		}
		c.touchSession()
	case conversation.VoiceSpeaking:
		if f.Speech {
			c.bargeIn("speech")
			if c.machine.State() == conversation.VoiceListening {
				c.send(realtime.NewInputAudioAppend(f.PCM))
			}
		}
	}
}

// bargeIn cuts assistant playback and hands the turn back to the user.
func (c *Client) bargeIn(reason string) {
	log.Printf("assistant: barge-in (%s)", reason)
	if c.opts.Audio != nil {
		if err := c.opts.Audio.Interrupt(); err != nil {
			log.Printf("assistant: %v", err)
		}
	}
	if c.responseID != "" {
		c.send(realtime.NewResponseCancel(c.responseID))
		c.cancelledResponse = c.responseID
		c.responseID = ""
	}
	c.toolTurnDone = false
	c.finalizeAssistantMessages()
	c.opts.Metrics.ObserveBargeIn()
	if c.opts.Sessions != nil && c.sessionID != "" {
		_ = c.opts.Sessions.Interrupt(c.sessionID)
	}
	c.publish(Event{Kind: EventPlaybackStop, Detail: reason})
	c.send(realtime.NewInputAudioClear())
	c.machine.Apply(conversation.EventBargeIn)
}
