// Package protocol defines the JSON messages exchanged with the glasses
// companion app over the device bridge websocket.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeDeviceAudioChunk MessageType = "device_audio_chunk"
	TypeDeviceControl    MessageType = "device_control"
	TypePhotoResult      MessageType = "photo_result"

	TypeAssistantAudio  MessageType = "assistant_audio_chunk"
	TypePlaybackStop    MessageType = "playback_stop"
	TypeCapturePhoto    MessageType = "capture_photo"
	TypeStateEvent      MessageType = "state_event"
	TypeTranscriptEvent MessageType = "transcript_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Control actions accepted in device_control.
const (
	ActionConnect        = "connect"
	ActionDisconnect     = "disconnect"
	ActionStartListening = "start_listening"
	ActionStopListening  = "stop_listening"
	ActionForceResponse  = "force_response"
	ActionMute           = "mute"
	ActionUnmute         = "unmute"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// ValidationError reports a well-formed message with missing or invalid fields.
type ValidationError struct {
	Type   MessageType
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Reason)
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type DeviceAudioChunk struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	Channels    int         `json:"channels,omitempty"`
}

// PCM decodes the base64 payload.
func (m DeviceAudioChunk) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.PCM16Base64)
}

type DeviceControl struct {
	Type     MessageType `json:"type"`
	Action   string      `json:"action"`
	ThreadID string      `json:"thread_id,omitempty"`
}

type PhotoResult struct {
	Type        MessageType `json:"type"`
	RequestID   string      `json:"request_id"`
	ImageBase64 string      `json:"image_base64,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func (m PhotoResult) Image() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.ImageBase64)
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq"`
	SampleRate  int         `json:"sample_rate"`
	AudioBase64 string      `json:"audio_base64"`
}

type PlaybackStop struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

type CapturePhoto struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
}

type StateEvent struct {
	Type       MessageType `json:"type"`
	Connection string      `json:"connection"`
	Voice      string      `json:"voice"`
	Configured bool        `json:"configured"`
	Detail     string      `json:"detail,omitempty"`
}

type TranscriptEvent struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
	Final     bool        `json:"final"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func NewAssistantAudioChunk(seq, sampleRate int, pcm []byte) AssistantAudioChunk {
	return AssistantAudioChunk{
		Type:        TypeAssistantAudio,
		Seq:         seq,
		SampleRate:  sampleRate,
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
	}
}

// ParseDeviceMessage decodes one device → service frame and validates its
// required fields.
func ParseDeviceMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeDeviceAudioChunk:
		var msg DeviceAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" {
			return nil, &ValidationError{Type: env.Type, Reason: "pcm16_base64 is required"}
		}
		if msg.SampleRate <= 0 {
			return nil, &ValidationError{Type: env.Type, Reason: "sample_rate must be > 0"}
		}
		if msg.Channels < 0 {
			return nil, &ValidationError{Type: env.Type, Reason: "channels must be >= 0"}
		}
		if msg.Channels == 0 {
			msg.Channels = 1
		}
		return msg, nil
	case TypeDeviceControl:
		var msg DeviceControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionConnect, ActionDisconnect, ActionStartListening, ActionStopListening, ActionForceResponse,
			ActionMute, ActionUnmute:
		case "":
			return nil, &ValidationError{Type: env.Type, Reason: "action is required"}
		default:
			return nil, &ValidationError{Type: env.Type, Reason: fmt.Sprintf("unknown action %q", msg.Action)}
		}
		return msg, nil
	case TypePhotoResult:
		var msg PhotoResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RequestID == "" {
			return nil, &ValidationError{Type: env.Type, Reason: "request_id is required"}
		}
		if msg.Error == "" && msg.ImageBase64 == "" {
			return nil, &ValidationError{Type: env.Type, Reason: "image_base64 or error is required"}
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
