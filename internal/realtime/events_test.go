package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseServerEventTypes(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"session.created","event_id":"e1","session":{"id":"sess_1","model":"gpt-4o-realtime-preview"}}`))
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	created, ok := ev.(*SessionCreated)
	if !ok {
		t.Fatalf("event = %T, want *SessionCreated", ev)
	}
	if created.Session.ID != "sess_1" || created.EventID != "e1" {
		t.Fatalf("session = %+v", created)
	}

	ev, err = ParseServerEvent([]byte(`{"type":"response.function_call_arguments.done","call_id":"call_1","name":"take_photo","arguments":"{}"}`))
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	fc := ev.(*FunctionCallArgumentsDone)
	if fc.CallID != "call_1" || fc.Name != "take_photo" {
		t.Fatalf("function call = %+v", fc)
	}

	ev, err = ParseServerEvent([]byte(`{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`))
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	if msg := ev.(*ErrorEvent).Error.Message; msg != "nope" {
		t.Fatalf("error message = %q, want nope", msg)
	}
}

func TestParseServerEventUnknownType(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"type":"conversation.item.truncated"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseServerEvent([]byte(`not json`)); err == nil || errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("malformed error = %v", err)
	}
}

func TestAudioDeltaPCM(t *testing.T) {
	ev, err := ParseServerEvent([]byte(`{"type":"response.audio.delta","response_id":"r1","item_id":"i1","delta":"AQACAA=="}`))
	if err != nil {
		t.Fatalf("ParseServerEvent() error = %v", err)
	}
	pcm, err := ev.(*ResponseAudioDelta).PCM()
	if err != nil {
		t.Fatalf("PCM() error = %v", err)
	}
	if len(pcm) != 4 || pcm[0] != 1 || pcm[2] != 2 {
		t.Fatalf("PCM() = %v", pcm)
	}
}

func TestResponseHasFunctionCall(t *testing.T) {
	r := ResponseInfo{Output: []OutputItem{{Type: "message"}, {Type: "function_call", CallID: "c"}}}
	if !r.HasFunctionCall() {
		t.Fatalf("HasFunctionCall() = false")
	}
	if (ResponseInfo{}).HasFunctionCall() {
		t.Fatalf("empty HasFunctionCall() = true")
	}
}

func TestClientEventEncoding(t *testing.T) {
	b, err := json.Marshal(NewFunctionCallOutput("call_9", `{"success":true}`))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(b)
	for _, want := range []string{`"type":"conversation.item.create"`, `"type":"function_call_output"`, `"call_id":"call_9"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("encoded = %s, missing %s", got, want)
		}
	}

	b, _ = json.Marshal(NewInputAudioAppend([]byte{1, 0}))
	if string(b) != `{"type":"input_audio_buffer.append","audio":"AQA="}` {
		t.Fatalf("append = %s", b)
	}

	b, _ = json.Marshal(NewResponseCreate())
	if string(b) != `{"type":"response.create"}` {
		t.Fatalf("response.create = %s", b)
	}
}

func TestDialURL(t *testing.T) {
	got, err := DialURL("", "gpt-4o-realtime-preview")
	if err != nil {
		t.Fatalf("DialURL() error = %v", err)
	}
	if got != DefaultURL+"?model=gpt-4o-realtime-preview" {
		t.Fatalf("DialURL() = %q", got)
	}
}
