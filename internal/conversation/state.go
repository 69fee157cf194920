// Package conversation holds the voice interaction state machine and the
// end-of-utterance intent classifier.
package conversation

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("conversation: invalid transition")

type VoiceState string

const (
	VoiceIdle       VoiceState = "idle"
	VoiceListening  VoiceState = "listening"
	VoiceProcessing VoiceState = "processing"
	VoiceSpeaking   VoiceState = "speaking"
)

type Event string

const (
	// EventStartListening is the user opening the microphone.
	EventStartListening Event = "start_listening"
	// EventSilenceDetected is server VAD reporting end of speech.
	EventSilenceDetected Event = "silence_detected"
	// EventStopListening is the user closing the microphone.
	EventStopListening Event = "stop_listening"
	EventForceResponse Event = "force_response"
	// EventAssistantOutput is the first audio or transcript delta of a response.
	EventAssistantOutput Event = "assistant_output"
	// EventResponseComplete is response.done with no pending tool call and
	// playback drained.
	EventResponseComplete Event = "response_complete"
	// EventBargeIn is local speech detected during playback.
	EventBargeIn        Event = "barge_in"
	EventTransportError Event = "transport_error"
	// EventReset returns to idle on disconnect.
	EventReset Event = "reset"
)

type transitionKey struct {
	from  VoiceState
	event Event
}

var transitions = map[transitionKey]VoiceState{
	{VoiceIdle, EventStartListening}:         VoiceListening,
	{VoiceListening, EventSilenceDetected}:   VoiceProcessing,
	{VoiceListening, EventStopListening}:     VoiceProcessing,
	{VoiceListening, EventForceResponse}:     VoiceProcessing,
	{VoiceProcessing, EventAssistantOutput}:  VoiceSpeaking,
	{VoiceProcessing, EventResponseComplete}: VoiceIdle,
	{VoiceSpeaking, EventResponseComplete}:   VoiceIdle,
	{VoiceSpeaking, EventBargeIn}:            VoiceListening,
}

// Next returns the state reached from s on ev, or false when the table has
// no such row. Transport errors and resets lead to idle from anywhere.
func Next(s VoiceState, ev Event) (VoiceState, bool) {
	if ev == EventTransportError || ev == EventReset {
		return VoiceIdle, true
	}
	to, ok := transitions[transitionKey{s, ev}]
	return to, ok
}

// Machine tracks the current voice state. It is not safe for concurrent use;
// the owning actor serializes access.
type Machine struct {
	state        VoiceState
	OnTransition func(from, to VoiceState, ev Event)
}

func NewMachine() *Machine {
	return &Machine{state: VoiceIdle}
}

func (m *Machine) State() VoiceState { return m.state }

// Apply moves the machine along the table. Events without a row leave the
// state unchanged and return false.
func (m *Machine) Apply(ev Event) bool {
	to, ok := Next(m.state, ev)
	if !ok {
		return false
	}
	from := m.state
	m.state = to
	if m.OnTransition != nil && from != to {
		m.OnTransition(from, to, ev)
	}
	return true
}

// Can reports whether ev has a row from the current state.
func (m *Machine) Can(ev Event) bool {
	_, ok := Next(m.state, ev)
	return ok
}

type InvalidTransitionError struct {
	From  VoiceState
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("conversation: %s not allowed while %s", e.Event, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
