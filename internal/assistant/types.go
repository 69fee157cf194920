package assistant

import (
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/threads"
)

type EventKind string

const (
	EventState      EventKind = "state"
	EventTranscript EventKind = "transcript"
	EventError      EventKind = "error"
	// EventPlaybackStop is published when assistant audio is cut off.
	EventPlaybackStop EventKind = "playback_stop"
)

// State is the externally visible session state.
type State struct {
	Connection conversation.Connection
	Voice      conversation.VoiceState
	Configured bool
	ThreadID   string
	Detail     string
}

// Event is one entry in the client's outbound feed.
type Event struct {
	Kind    EventKind
	State   State
	Message threads.Message
	Code    string
	Detail  string
}

type Snapshot struct {
	Connection       conversation.Connection `json:"-"`
	Voice            conversation.VoiceState `json:"voice"`
	Configured       bool                    `json:"configured"`
	SessionID        string                  `json:"session_id,omitempty"`
	ThreadID         string                  `json:"thread_id,omitempty"`
	ResponseID       string                  `json:"response_id,omitempty"`
	PendingToolCalls int                     `json:"pending_tool_calls"`
	Muted            bool                    `json:"muted"`
	Detail           string                  `json:"detail,omitempty"`
	Messages         []threads.Message       `json:"messages"`
}
