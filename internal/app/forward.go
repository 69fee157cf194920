package app

import (
	"context"

	"github.com/ent0n29/glassvoice/internal/assistant"
	"github.com/ent0n29/glassvoice/internal/protocol"
	"github.com/ent0n29/glassvoice/internal/pubsub"
)

// Sender delivers one outbound message to the attached device.
type Sender interface {
	Send(msg any) bool
}

// ForwardEvents relays the assistant's event feed to the device until ctx is
// done or the feed closes.
func ForwardEvents(ctx context.Context, sub *pubsub.Subscription[assistant.Event], out Sender) {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if msg, ok := deviceMessage(ev); ok {
				out.Send(msg)
			}
		}
	}
}

func deviceMessage(ev assistant.Event) (any, bool) {
	switch ev.Kind {
	case assistant.EventState:
		return protocol.StateEvent{
			Type:       protocol.TypeStateEvent,
			Connection: ev.State.Connection.String(),
			Voice:      string(ev.State.Voice),
			Configured: ev.State.Configured,
			Detail:     ev.State.Detail,
		}, true
	case assistant.EventTranscript:
		return protocol.TranscriptEvent{
			Type:      protocol.TypeTranscriptEvent,
			MessageID: ev.Message.ID,
			Role:      string(ev.Message.Role),
			Text:      ev.Message.Text,
			Final:     ev.Message.Final,
		}, true
	case assistant.EventError:
		return protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   ev.Code,
			Detail: ev.Detail,
		}, true
	default:
		// playback_stop reaches the device through the speaker.
		return nil, false
	}
}
