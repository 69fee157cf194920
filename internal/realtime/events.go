// Package realtime speaks the OpenAI Realtime websocket protocol: typed
// client/server events and a connection with one reader and one writer.
package realtime

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnsupportedType = errors.New("realtime: unsupported event type")

// Client event types.
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioAppend       = "input_audio_buffer.append"
	TypeInputAudioCommit       = "input_audio_buffer.commit"
	TypeInputAudioClear        = "input_audio_buffer.clear"
	TypeConversationItemCreate = "conversation.item.create"
	TypeConversationItemDelete = "conversation.item.delete"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// Server event types.
const (
	TypeError                        = "error"
	TypeSessionCreated               = "session.created"
	TypeSessionUpdated               = "session.updated"
	TypeResponseCreated              = "response.created"
	TypeResponseDone                 = "response.done"
	TypeResponseAudioDelta           = "response.audio.delta"
	TypeResponseAudioDone            = "response.audio.done"
	TypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone  = "response.audio_transcript.done"
	TypeResponseTextDelta            = "response.text.delta"
	TypeResponseTextDone             = "response.text.done"
	TypeSpeechStarted                = "input_audio_buffer.speech_started"
	TypeSpeechStopped                = "input_audio_buffer.speech_stopped"
	TypeInputAudioCommitted          = "input_audio_buffer.committed"
	TypeInputTranscriptionDelta      = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionCompleted  = "conversation.item.input_audio_transcription.completed"
	TypeInputTranscriptionFailed     = "conversation.item.input_audio_transcription.failed"
	TypeFunctionCallArgumentsDone    = "response.function_call_arguments.done"
	TypeRateLimitsUpdated            = "rate_limits.updated"
)

// ClientEvent is anything the client sends upstream.
type ClientEvent interface {
	EventType() string
}

// ServerEvent is a decoded upstream event.
type ServerEvent interface {
	EventType() string
}

type header struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

func (h header) EventType() string { return h.Type }

// ---- session configuration ----

type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Tools                   []ToolDefinition     `json:"tools"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ---- client events ----

type SessionUpdate struct {
	header
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{header: header{Type: TypeSessionUpdate}, Session: cfg}
}

type InputAudioAppend struct {
	header
	Audio string `json:"audio"`
}

func NewInputAudioAppend(pcm []byte) InputAudioAppend {
	return InputAudioAppend{
		header: header{Type: TypeInputAudioAppend},
		Audio:  base64.StdEncoding.EncodeToString(pcm),
	}
}

type InputAudioCommit struct{ header }

func NewInputAudioCommit() InputAudioCommit {
	return InputAudioCommit{header{Type: TypeInputAudioCommit}}
}

type InputAudioClear struct{ header }

func NewInputAudioClear() InputAudioClear {
	return InputAudioClear{header{Type: TypeInputAudioClear}}
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

type ConversationItemCreate struct {
	header
	PreviousItemID string `json:"previous_item_id,omitempty"`
	Item           Item   `json:"item"`
}

// NewMessageItem creates a text message item. User text goes in as
// input_text and assistant text as text.
func NewMessageItem(role, text, previousItemID string) ConversationItemCreate {
	partType := "input_text"
	if role == "assistant" {
		partType = "text"
	}
	return ConversationItemCreate{
		header:         header{Type: TypeConversationItemCreate},
		PreviousItemID: previousItemID,
		Item: Item{
			Type:    "message",
			Role:    role,
			Content: []ContentPart{{Type: partType, Text: text}},
		},
	}
}

// NewFunctionCallOutput wraps a tool result for the call it answers.
func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		header: header{Type: TypeConversationItemCreate},
		Item:   Item{Type: "function_call_output", CallID: callID, Output: output},
	}
}

type ConversationItemDelete struct {
	header
	ItemID string `json:"item_id"`
}

func NewConversationItemDelete(itemID string) ConversationItemDelete {
	return ConversationItemDelete{header: header{Type: TypeConversationItemDelete}, ItemID: itemID}
}

type ResponseOptions struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

type ResponseCreate struct {
	header
	Response *ResponseOptions `json:"response,omitempty"`
}

func NewResponseCreate() ResponseCreate {
	return ResponseCreate{header: header{Type: TypeResponseCreate}}
}

type ResponseCancel struct {
	header
	ResponseID string `json:"response_id,omitempty"`
}

func NewResponseCancel(responseID string) ResponseCancel {
	return ResponseCancel{header: header{Type: TypeResponseCancel}, ResponseID: responseID}
}

// ---- server events ----

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

type ErrorEvent struct {
	header
	Error ErrorDetail `json:"error"`
}

type SessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
	Voice string `json:"voice,omitempty"`
}

type SessionCreated struct {
	header
	Session SessionInfo `json:"session"`
}

type SessionUpdated struct {
	header
	Session SessionInfo `json:"session"`
}

type OutputItem struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Status    string `json:"status,omitempty"`
}

type ResponseInfo struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output []OutputItem `json:"output,omitempty"`
}

// HasFunctionCall reports whether the response asked for a tool.
func (r ResponseInfo) HasFunctionCall() bool {
	for _, o := range r.Output {
		if o.Type == "function_call" {
			return true
		}
	}
	return false
}

type ResponseCreated struct {
	header
	Response ResponseInfo `json:"response"`
}

type ResponseDone struct {
	header
	Response ResponseInfo `json:"response"`
}

type ResponseAudioDelta struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// PCM decodes the base64 audio payload.
func (e ResponseAudioDelta) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Delta)
}

type ResponseAudioDone struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

type ResponseAudioTranscriptDelta struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

type ResponseAudioTranscriptDone struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type ResponseTextDelta struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

type ResponseTextDone struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Text       string `json:"text"`
}

type SpeechStarted struct {
	header
	AudioStartMS int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStopped struct {
	header
	AudioEndMS int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type InputAudioCommitted struct {
	header
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ItemID         string `json:"item_id"`
}

type InputTranscriptionDelta struct {
	header
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type InputTranscriptionCompleted struct {
	header
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type InputTranscriptionFailed struct {
	header
	ItemID string      `json:"item_id"`
	Error  ErrorDetail `json:"error"`
}

type FunctionCallArgumentsDone struct {
	header
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

type RateLimitsUpdated struct {
	header
	RateLimits []RateLimit `json:"rate_limits"`
}

// ParseServerEvent decodes one websocket message by its type discriminator.
// Unknown types return an error wrapping ErrUnsupportedType.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var ev ServerEvent
	switch h.Type {
	case TypeError:
		ev = &ErrorEvent{}
	case TypeSessionCreated:
		ev = &SessionCreated{}
	case TypeSessionUpdated:
		ev = &SessionUpdated{}
	case TypeResponseCreated:
		ev = &ResponseCreated{}
	case TypeResponseDone:
		ev = &ResponseDone{}
	case TypeResponseAudioDelta:
		ev = &ResponseAudioDelta{}
	case TypeResponseAudioDone:
		ev = &ResponseAudioDone{}
	case TypeResponseAudioTranscriptDelta:
		ev = &ResponseAudioTranscriptDelta{}
	case TypeResponseAudioTranscriptDone:
		ev = &ResponseAudioTranscriptDone{}
	case TypeResponseTextDelta:
		ev = &ResponseTextDelta{}
	case TypeResponseTextDone:
		ev = &ResponseTextDone{}
	case TypeSpeechStarted:
		ev = &SpeechStarted{}
	case TypeSpeechStopped:
		ev = &SpeechStopped{}
	case TypeInputAudioCommitted:
		ev = &InputAudioCommitted{}
	case TypeInputTranscriptionDelta:
		ev = &InputTranscriptionDelta{}
	case TypeInputTranscriptionCompleted:
		ev = &InputTranscriptionCompleted{}
	case TypeInputTranscriptionFailed:
		ev = &InputTranscriptionFailed{}
	case TypeFunctionCallArgumentsDone:
		ev = &FunctionCallArgumentsDone{}
	case TypeRateLimitsUpdated:
		ev = &RateLimitsUpdated{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, h.Type)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.Type, err)
	}
	return ev, nil
}
