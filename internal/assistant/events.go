package assistant

import (
	"context"
	"log"
	"time"

	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/policy"
	"github.com/ent0n29/glassvoice/internal/realtime"
	"github.com/ent0n29/glassvoice/internal/reliability"
	"github.com/ent0n29/glassvoice/internal/threads"
)

func (c *Client) handleEvent(gen uint64, ev realtime.ServerEvent) {
	if gen != c.gen {
		return
	}
	if c.conn == nil {
		// Connect has not stored the conn yet; replay once it has.
		if c.connection.State == conversation.ConnConnecting {
			c.early = append(c.early, ev)
		}
		return
	}

	switch e := ev.(type) {
	case *realtime.SessionCreated:
		log.Printf("assistant: session.created id=%s model=%s", e.Session.ID, e.Session.Model)
		c.markConnected()
		c.configure()
	case *realtime.SessionUpdated:
		if !c.configSentAt.IsZero() {
			c.opts.Metrics.ObserveStage(observability.StageConfigApply, time.Since(c.configSentAt))
			c.configSentAt = time.Time{}
		}
		if !c.configured {
			c.configured = true
			c.publishState()
		}
	case *realtime.ErrorEvent:
		c.handleServerError(e)
	case *realtime.ResponseCreated:
		c.responseID = e.Response.ID
	case *realtime.ResponseAudioDelta:
		c.handleAudioDelta(e)
	case *realtime.ResponseAudioTranscriptDelta:
		c.handleAssistantDelta(e.ResponseID, e.ItemID, e.Delta)
	case *realtime.ResponseTextDelta:
		c.handleAssistantDelta(e.ResponseID, e.ItemID, e.Delta)
	case *realtime.ResponseAudioTranscriptDone:
		c.handleAssistantDone(e.ResponseID, e.ItemID, e.Transcript)
	case *realtime.ResponseTextDone:
		c.handleAssistantDone(e.ResponseID, e.ItemID, e.Text)
	case *realtime.ResponseDone:
		c.handleResponseDone(e)
	case *realtime.SpeechStarted:
		log.Printf("assistant: server detected speech start")
	case *realtime.SpeechStopped:
		c.handleSpeechStopped()
	case *realtime.InputAudioCommitted:
		c.handleCommitted(e)
	case *realtime.InputTranscriptionDelta:
		c.handleUserDelta(e.ItemID, e.Delta)
	case *realtime.InputTranscriptionCompleted:
		c.handleUserTranscript(e.ItemID, e.Transcript, false)
	case *realtime.InputTranscriptionFailed:
		log.Printf("assistant: input transcription failed for %s: %s", e.ItemID, e.Error.Message)
		c.handleUserTranscript(e.ItemID, "", true)
	case *realtime.FunctionCallArgumentsDone:
		c.handleFunctionCall(e)
	case *realtime.RateLimitsUpdated:
		for _, rl := range e.RateLimits {
			if rl.Limit > 0 && rl.Remaining*10 < rl.Limit {
				log.Printf("assistant: rate limit %s low: %d/%d", rl.Name, rl.Remaining, rl.Limit)
			}
		}
	}
}

func (c *Client) handleServerError(e *realtime.ErrorEvent) {
	d := e.Error
	retryable := reliability.IsRetryableRealtimeError(d.Type, d.Code)
	log.Printf("assistant: server error type=%s code=%s retryable=%t: %s", d.Type, d.Code, retryable, d.Message)
	c.opts.Metrics.ObserveProviderError("openai", d.Code)
	c.lastDetail = d.Message
	c.publishState()
	c.publish(Event{Kind: EventError, Code: d.Code, Detail: d.Message})
}

func (c *Client) handleAudioDelta(e *realtime.ResponseAudioDelta) {
	if e.ResponseID != "" && e.ResponseID == c.cancelledResponse {
		return
	}
	state := c.machine.State()
	if state != conversation.VoiceProcessing && state != conversation.VoiceSpeaking {
		return
	}
	pcm, err := e.PCM()
	if err != nil {
		log.Printf("assistant: bad audio delta: %v", err)
		return
	}
	c.beginSpeaking()
	if c.opts.Audio != nil {
		if err := c.opts.Audio.Enqueue(pcm); err != nil {
			log.Printf("assistant: enqueue playback: %v", err)
		}
	}
}

// beginSpeaking moves processing to speaking on the first output of a response.
func (c *Client) beginSpeaking() {
	if !c.firstAudioSeen && !c.requestedAt.IsZero() {
		c.opts.Metrics.ObserveFirstAudioLatency(time.Since(c.requestedAt))
	}
	c.firstAudioSeen = true
	if c.machine.State() == conversation.VoiceProcessing {
		c.machine.Apply(conversation.EventAssistantOutput)
	}
}

func (c *Client) handleAssistantDelta(responseID, itemID, delta string) {
	if responseID != "" && responseID == c.cancelledResponse {
		return
	}
	state := c.machine.State()
	if state != conversation.VoiceProcessing && state != conversation.VoiceSpeaking {
		return
	}
	c.beginSpeaking()
	i := c.messageForItem(itemID, threads.RoleAssistant)
	c.messages[i].Text += delta
	c.publishMessage(i)
}

func (c *Client) handleAssistantDone(responseID, itemID, text string) {
	if responseID != "" && responseID == c.cancelledResponse {
		return
	}
	id, ok := c.itemMsg[itemID]
	if !ok {
		if text == "" {
			return
		}
		id = c.messages[c.messageForItem(itemID, threads.RoleAssistant)].ID
	}
	i := c.findMessage(id)
	if i < 0 {
		return
	}
	if text != "" {
		c.messages[i].Text = text
	}
	c.messages[i].Final = true
	c.publishMessage(i)
	c.saveMessages()
}

func (c *Client) handleResponseDone(e *realtime.ResponseDone) {
	respID := e.Response.ID
	if respID != "" && respID == c.cancelledResponse {
		c.cancelledResponse = ""
		return
	}
	if respID == c.responseID {
		c.responseID = ""
	}
	if e.Response.Status == "failed" || e.Response.Status == "incomplete" {
		log.Printf("assistant: response %s ended with status %s", respID, e.Response.Status)
	}

	if e.Response.HasFunctionCall() || len(c.pendingCalls) > 0 {
		c.toolTurnDone = true
		c.maybeContinueAfterTools()
		return
	}

	c.finalizeAssistantMessages()
	switch c.machine.State() {
	case conversation.VoiceProcessing:
		c.machine.Apply(conversation.EventResponseComplete)
	case conversation.VoiceSpeaking:
		if c.opts.Audio == nil {
			c.machine.Apply(conversation.EventResponseComplete)
			return
		}
		gen := c.gen
		c.opts.Audio.NotifyWhenDrained(func() {
			// May run synchronously on the actor, so hand off.
			go c.post(func() { c.onPlaybackDrained(gen) })
		})
	}
}

func (c *Client) onPlaybackDrained(gen uint64) {
	if gen != c.gen || c.responseID != "" || len(c.pendingCalls) > 0 {
		return
	}
	if c.machine.State() == conversation.VoiceSpeaking {
		c.machine.Apply(conversation.EventResponseComplete)
	}
}

func (c *Client) handleSpeechStopped() {
	if c.machine.State() != conversation.VoiceListening {
		return
	}
	if c.opts.IntentGate {
		// The server has committed the buffer but will not respond on its own;
		// the decision waits for the transcript.
		c.awaitingIntent = true
		return
	}
	c.markRequested()
	c.machine.Apply(conversation.EventSilenceDetected)
}

func (c *Client) handleCommitted(e *realtime.InputAudioCommitted) {
	if c.opts.Audio != nil {
		c.opts.Audio.CommitUtterance(e.ItemID)
	}
	if _, ok := c.itemMsg[e.ItemID]; ok {
		return
	}
	// Placeholder keeps the user message ahead of the assistant reply even
	// when the transcript arrives late.
	c.messageForItem(e.ItemID, threads.RoleUser)
}

func (c *Client) handleUserDelta(itemID, delta string) {
	i := c.messageForItem(itemID, threads.RoleUser)
	c.messages[i].Text += delta
	c.publishMessage(i)
}

func (c *Client) handleUserTranscript(itemID, transcript string, failed bool) {
	id, ok := c.itemMsg[itemID]
	if ok {
		i := c.findMessage(id)
		if i >= 0 {
			if transcript == "" && c.messages[i].Text == "" {
				c.removeMessage(i)
				delete(c.itemMsg, itemID)
				if !failed {
					// Nothing was said; keep the server conversation clean too.
					c.send(realtime.NewConversationItemDelete(itemID))
				}
			} else {
				if transcript != "" {
					c.messages[i].Text = transcript
				}
				c.messages[i].Final = true
				log.Printf("assistant: user said %q", policy.ForLog(c.messages[i].Text))
				c.publishMessage(i)
			}
			c.saveMessages()
		}
	} else if transcript != "" {
		i := c.messageForItem(itemID, threads.RoleUser)
		c.messages[i].Text = transcript
		c.messages[i].Final = true
		c.publishMessage(i)
		c.saveMessages()
	}

	if c.awaitingIntent {
		c.awaitingIntent = false
		if transcript == "" && c.heldTranscript == "" && !failed {
			return
		}
		c.classifyIntent(transcript)
	}
}

// classifyIntent decides off the actor whether the held utterance should get
// a response. Only an explicit hold keeps listening.
func (c *Client) classifyIntent(transcript string) {
	if c.heldTranscript != "" && transcript != "" {
		transcript = c.heldTranscript + " " + transcript
	} else if transcript == "" {
		transcript = c.heldTranscript
	}
	gen := c.gen
	classifier := c.opts.Classifier
	timeout := c.opts.IntentTimeout
	go func() {
		start := time.Now()
		respond, intent := conversation.ShouldRespond(context.Background(), classifier, transcript, timeout)
		c.opts.Metrics.ObserveStage(observability.StageIntentClassify, time.Since(start))
		c.post(func() { c.onIntent(gen, transcript, respond, intent) })
	}()
}

func (c *Client) onIntent(gen uint64, transcript string, respond bool, intent conversation.Intent) {
	if gen != c.gen || c.machine.State() != conversation.VoiceListening {
		return
	}
	if !respond {
		log.Printf("assistant: holding for more speech (intent=%s)", intent)
		c.heldTranscript = transcript
		return
	}
	c.heldTranscript = ""
	c.markRequested()
	if c.send(realtime.NewResponseCreate()) {
		c.machine.Apply(conversation.EventSilenceDetected)
	}
}
