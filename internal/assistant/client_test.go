package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/session"
	"github.com/ent0n29/glassvoice/internal/sessionconfig"
	"github.com/ent0n29/glassvoice/internal/threads"
	"github.com/ent0n29/glassvoice/internal/tools"
)

type fakeRealtime struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan map[string]any
	greet    bool
}

func newFakeRealtime(t *testing.T, greet bool) *fakeRealtime {
	t.Helper()
	fr := &fakeRealtime{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan map[string]any, 1024),
		greet:    greet,
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fr.conns <- conn
		if fr.greet {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created","session":{"id":"sess_1","model":"test"}}`))
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if json.Unmarshal(data, &msg) == nil {
				fr.received <- msg
			}
		}
	}))
	t.Cleanup(fr.srv.Close)
	return fr
}

func (fr *fakeRealtime) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func (fr *fakeRealtime) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fr.conns:
		fr.conns <- c
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("client never connected")
		return nil
	}
}

func (fr *fakeRealtime) send(t *testing.T, events ...string) {
	t.Helper()
	conn := fr.conn(t)
	for _, ev := range events {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}
}

// expect reads client events until one of type want arrives. Audio appends
// are skipped.
func (fr *fakeRealtime) expect(t *testing.T, want string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-fr.received:
			if msg["type"] == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("client event %q not received", want)
			return nil
		}
	}
}

func (fr *fakeRealtime) count(window time.Duration, typ string) int {
	deadline := time.After(window)
	n := 0
	for {
		select {
		case msg := <-fr.received:
			if msg["type"] == typ {
				n++
			}
		case <-deadline:
			return n
		}
	}
}

type chanMic struct{ ch chan audio.Frame }

func (m *chanMic) Start(context.Context) (<-chan audio.Frame, error) { return m.ch, nil }

type countingSpeaker struct{ plays atomic.Int32 }

func (s *countingSpeaker) Play([]byte) error {
	s.plays.Add(1)
	return nil
}
func (s *countingSpeaker) Stop() error { return nil }

type echoTool struct{}

func (echoTool) Name() string                { return "echo" }
func (echoTool) Description() string         { return "echo" }
func (echoTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Active() bool                { return true }
func (echoTool) Execute(context.Context, json.RawMessage) (string, error) {
	return `{"success":true,"echo":"hi"}`, nil
}

type harness struct {
	client   *Client
	fr       *fakeRealtime
	mic      *chanMic
	speaker  *countingSpeaker
	threads  *threads.Manager
	sessions *session.Manager
}

func newHarness(t *testing.T, greet bool, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		fr:       newFakeRealtime(t, greet),
		mic:      &chanMic{ch: make(chan audio.Frame, 64)},
		speaker:  &countingSpeaker{},
		threads:  threads.NewManager(context.Background(), nil, threads.Options{}),
		sessions: session.NewManager(time.Minute),
	}
	pipeline := audio.NewPipeline(audio.PipelineOptions{
		Microphone:   h.mic,
		Speaker:      h.speaker,
		VADThreshold: 0.04,
	})
	t.Cleanup(func() { _ = pipeline.Close() })

	dispatcher, err := tools.NewDispatcher(time.Second, nil, echoTool{})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	opts := Options{
		APIKey:         "test-key",
		URL:            h.fr.url(),
		Model:          "test-model",
		ConfigureGrace: 2 * time.Second,
		ConfigDebounce: 40 * time.Millisecond,
		Config:         sessionconfig.NewBuilder(sessionconfig.Options{}, nil, dispatcher),
		Tools:          dispatcher,
		Audio:          pipeline,
		Threads:        h.threads,
		Sessions:       h.sessions,
		Metrics:        observability.NewMetrics("test_assistant_" + strconv.FormatInt(time.Now().UnixNano(), 10)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.client = New(opts)
	t.Cleanup(func() { _ = h.client.Close() })
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	if err := h.client.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.fr.expect(t, "session.update")
	h.fr.send(t, `{"type":"session.updated","session":{"id":"sess_1"}}`)
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Configured })
}

func waitSnapshot(t *testing.T, c *Client, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last Snapshot
	for time.Now().Before(deadline) {
		last = c.Snapshot()
		if cond(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("snapshot condition not met; last = %+v (connection %s)", last, last.Connection)
	return last
}

func speechFrame() audio.Frame {
	samples := make([]int16, 480)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 12000
		} else {
			samples[i] = -12000
		}
	}
	return audio.Frame{PCM: audio.EncodePCM16LE(samples), SampleRate: audio.WireSampleRate, Channels: 1}
}

func TestConnectWithoutAPIKeyFailsFast(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	err := c.Connect(context.Background(), "")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Connect() error = %v, want ErrMissingAPIKey", err)
	}
	snap := c.Snapshot()
	if snap.Connection.State != conversation.ConnError {
		t.Fatalf("Connection = %s, want error", snap.Connection)
	}
}

func TestConnectConfiguresAfterSessionCreated(t *testing.T) {
	h := newHarness(t, true, nil)
	sub := h.client.Subscribe()
	defer sub.Cancel()

	if err := h.client.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	update := h.fr.expect(t, "session.update")
	sess, _ := update["session"].(map[string]any)
	if sess == nil {
		t.Fatalf("session.update without session: %v", update)
	}
	if _, ok := sess["tools"]; !ok {
		t.Fatalf("session.update missing tools: %v", sess)
	}

	snap := waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Connection.State == conversation.ConnConnected })
	if snap.Configured {
		t.Fatalf("Configured = true before session.updated")
	}

	h.fr.send(t, `{"type":"session.updated","session":{"id":"sess_1"}}`)
	snap = waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Configured })
	if snap.SessionID == "" {
		t.Fatalf("SessionID empty after connect")
	}
	if h.sessions.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", h.sessions.ActiveCount())
	}

	// A second connect while connected is a no-op.
	if err := h.client.Connect(context.Background(), ""); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if n := h.fr.count(100*time.Millisecond, "session.update"); n != 0 {
		t.Fatalf("session.update count after second connect = %d, want 0", n)
	}
}

func TestConfigureFallsBackWithoutSessionCreated(t *testing.T) {
	h := newHarness(t, false, func(o *Options) { o.ConfigureGrace = 50 * time.Millisecond })

	if err := h.client.Connect(context.Background(), ""); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.fr.expect(t, "session.update")
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Connection.State == conversation.ConnConnected })

	// A late session.created must not configure a second time.
	h.fr.send(t, `{"type":"session.created","session":{"id":"sess_1"}}`)
	if n := h.fr.count(150*time.Millisecond, "session.update"); n != 0 {
		t.Fatalf("extra session.update count = %d, want 0", n)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)

	for i := 0; i < 2; i++ {
		if err := h.client.Disconnect(); err != nil {
			t.Fatalf("Disconnect() #%d error = %v", i+1, err)
		}
	}
	snap := h.client.Snapshot()
	if snap.Connection.State != conversation.ConnDisconnected {
		t.Fatalf("Connection = %s, want disconnected", snap.Connection)
	}
	if snap.Configured {
		t.Fatalf("Configured = true after disconnect")
	}
	if got := len(h.threads.List()); got != 0 {
		t.Fatalf("threads after empty session = %d, want 0", got)
	}
	if h.sessions.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", h.sessions.ActiveCount())
	}
}

func TestSettingsChangesAreCoalesced(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)

	for i := 0; i < 5; i++ {
		h.client.SettingsChanged()
	}
	if n := h.fr.count(300*time.Millisecond, "session.update"); n != 1 {
		t.Fatalf("session.update count = %d, want 1", n)
	}
}

func TestSpacedSettingsChangesEachPush(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)

	for i := 0; i < 3; i++ {
		h.client.SettingsChanged()
		h.fr.expect(t, "session.update")
		time.Sleep(100 * time.Millisecond)
	}
	if n := h.fr.count(150*time.Millisecond, "session.update"); n != 0 {
		t.Fatalf("extra session.update count = %d, want 0", n)
	}
}

func TestConnectResumeReplaysHistory(t *testing.T) {
	h := newHarness(t, true, nil)
	th := h.threads.CreateThread()
	history := []threads.Message{
		{ID: "m1", Role: threads.RoleUser, Text: "what's the weather in Lisbon", Final: true},
		{ID: "m2", Role: threads.RoleAssistant, Text: "Sunny and 24 degrees.", Final: true},
	}
	if err := h.threads.SaveMessages(history); err != nil {
		t.Fatalf("SaveMessages() error = %v", err)
	}
	h.threads.FinalizeActiveThread()

	if err := h.client.Connect(context.Background(), th.ID); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.fr.expect(t, "session.update")

	wantParts := []string{"input_text", "text"}
	for i, want := range history {
		ev := h.fr.expect(t, "conversation.item.create")
		item, _ := ev["item"].(map[string]any)
		if item["type"] != "message" || item["role"] != string(want.Role) {
			t.Fatalf("item #%d = %v, want %s message", i, item, want.Role)
		}
		content, _ := item["content"].([]any)
		if len(content) != 1 {
			t.Fatalf("item #%d content = %v, want one part", i, item["content"])
		}
		part, _ := content[0].(map[string]any)
		if part["type"] != wantParts[i] || part["text"] != want.Text {
			t.Fatalf("item #%d part = %v, want %s %q", i, part, wantParts[i], want.Text)
		}
	}

	snap := h.client.Snapshot()
	if snap.ThreadID != th.ID {
		t.Fatalf("ThreadID = %q, want %q", snap.ThreadID, th.ID)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(snap.Messages))
	}
}

func TestNewThreadSendsNoHistory(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	if n := h.fr.count(150*time.Millisecond, "conversation.item.create"); n != 0 {
		t.Fatalf("conversation.item.create count = %d, want 0", n)
	}
}

func TestMutedPlaybackDropsAudio(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	if err := h.client.SetMuted(true); err != nil {
		t.Fatalf("SetMuted() error = %v", err)
	}
	if !h.client.Snapshot().Muted {
		t.Fatalf("Muted = false after SetMuted(true)")
	}
	_ = h.client.StartListening()
	_ = h.client.StopListening()

	h.fr.send(t,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.audio.delta","response_id":"r1","item_id":"a1","delta":"AAAAAA=="}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","item_id":"a1","delta":"Hi"}`,
		`{"type":"response.audio_transcript.done","response_id":"r1","item_id":"a1","transcript":"Hi"}`,
		`{"type":"response.done","response":{"id":"r1","status":"completed","output":[{"id":"a1","type":"message"}]}}`,
	)
	snap := waitSnapshot(t, h.client, func(s Snapshot) bool {
		return s.Voice == conversation.VoiceIdle && len(s.Messages) == 1
	})
	if snap.Messages[0].Text != "Hi" {
		t.Fatalf("Messages = %+v", snap.Messages)
	}
	if n := h.speaker.plays.Load(); n != 0 {
		t.Fatalf("speaker plays while muted = %d, want 0", n)
	}

	if err := h.client.SetMuted(false); err != nil {
		t.Fatalf("SetMuted(false) error = %v", err)
	}
	if h.client.Snapshot().Muted {
		t.Fatalf("Muted = true after SetMuted(false)")
	}
}

func TestAudioDeltaWhileListeningIsIgnored(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	if err := h.client.StartListening(); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	sub := h.client.Subscribe()
	defer sub.Cancel()

	h.fr.send(t,
		`{"type":"response.audio.delta","response_id":"r0","item_id":"i0","delta":"AAAAAA=="}`,
		`{"type":"error","error":{"type":"invalid_request_error","code":"barrier","message":"barrier"}}`,
	)
	waitEvent(t, sub.C(), EventError)

	snap := h.client.Snapshot()
	if snap.Voice != conversation.VoiceListening {
		t.Fatalf("Voice = %s, want listening", snap.Voice)
	}
	if got := h.speaker.plays.Load(); got != 0 {
		t.Fatalf("speaker plays = %d, want 0", got)
	}
	if snap.Connection.State != conversation.ConnConnected {
		t.Fatalf("server error should not end the session: %s", snap.Connection)
	}
}

func TestListeningAppendsCapturedAudio(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	if err := h.client.StartListening(); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	h.mic.ch <- speechFrame()
	h.fr.expect(t, "input_audio_buffer.append")

	if err := h.client.StopListening(); err != nil {
		t.Fatalf("StopListening() error = %v", err)
	}
	h.fr.expect(t, "input_audio_buffer.commit")
	h.fr.expect(t, "response.create")
	if v := h.client.Snapshot().Voice; v != conversation.VoiceProcessing {
		t.Fatalf("Voice = %s, want processing", v)
	}
}

func TestResponseCompletesAfterPlaybackDrains(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.client.StartListening()
	if err := h.client.StopListening(); err != nil {
		t.Fatalf("StopListening() error = %v", err)
	}

	h.fr.send(t,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.audio.delta","response_id":"r1","item_id":"a1","delta":"AAAAAA=="}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","item_id":"a1","delta":"Hello"}`,
	)
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceSpeaking })

	h.fr.send(t,
		`{"type":"response.audio_transcript.done","response_id":"r1","item_id":"a1","transcript":"Hello there"}`,
		`{"type":"response.done","response":{"id":"r1","status":"completed","output":[{"id":"a1","type":"message"}]}}`,
	)
	snap := waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceIdle })
	if len(snap.Messages) != 1 || snap.Messages[0].Text != "Hello there" || !snap.Messages[0].Final {
		t.Fatalf("Messages = %+v", snap.Messages)
	}
	if h.speaker.plays.Load() == 0 {
		t.Fatalf("speaker never played")
	}
}

func TestEmptyResponseReturnsToIdle(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.client.StartListening()
	_ = h.client.StopListening()

	h.fr.send(t,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.done","response":{"id":"r1","status":"completed","output":[]}}`,
	)
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceIdle })
}

func TestBargeInCancelsResponse(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.client.StartListening()
	_ = h.client.StopListening()

	h.fr.send(t,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.audio.delta","response_id":"r1","item_id":"a1","delta":"AAAAAA=="}`,
	)
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceSpeaking })

	for i := 0; i < 6; i++ {
		h.mic.ch <- speechFrame()
	}
	cancel := h.fr.expect(t, "response.cancel")
	if cancel["response_id"] != "r1" {
		t.Fatalf("response_id = %v, want r1", cancel["response_id"])
	}
	snap := waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceListening })
	sess, err := h.sessions.Get(snap.SessionID)
	if err != nil {
		t.Fatalf("sessions.Get() error = %v", err)
	}
	if sess.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", sess.InterruptionCount)
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.client.StartListening()
	_ = h.client.StopListening()
	h.fr.expect(t, "response.create")

	h.fr.send(t,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.function_call_arguments.done","response_id":"r1","item_id":"f1","call_id":"call_1","name":"echo","arguments":"{}"}`,
		`{"type":"response.done","response":{"id":"r1","status":"completed","output":[{"id":"f1","type":"function_call","call_id":"call_1","name":"echo"}]}}`,
	)

	item := h.fr.expect(t, "conversation.item.create")
	body, _ := item["item"].(map[string]any)
	if body["type"] != "function_call_output" || body["call_id"] != "call_1" {
		t.Fatalf("item = %v", body)
	}
	if !strings.Contains(body["output"].(string), `"echo":"hi"`) {
		t.Fatalf("output = %v", body["output"])
	}
	h.fr.expect(t, "response.create")

	// The tool turn is not a completion.
	if v := h.client.Snapshot().Voice; v != conversation.VoiceProcessing {
		t.Fatalf("Voice = %s, want processing", v)
	}
}

func TestUnknownToolReturnsFailureResult(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	h.fr.send(t,
		`{"type":"response.function_call_arguments.done","response_id":"r1","item_id":"f1","call_id":"call_9","name":"launch_rocket","arguments":"{}"}`,
	)
	item := h.fr.expect(t, "conversation.item.create")
	body, _ := item["item"].(map[string]any)
	out, _ := body["output"].(string)
	if !strings.Contains(out, `"success":false`) {
		t.Fatalf("output = %q, want failure", out)
	}
}

func TestUserPlaceholderKeepsOrder(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.client.StartListening()

	h.fr.send(t,
		`{"type":"input_audio_buffer.speech_stopped","audio_end_ms":900,"item_id":"u1"}`,
		`{"type":"input_audio_buffer.committed","item_id":"u1"}`,
		`{"type":"response.created","response":{"id":"r1","status":"in_progress"}}`,
		`{"type":"response.audio_transcript.delta","response_id":"r1","item_id":"a1","delta":"Sure"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"turn on the lights"}`,
	)
	snap := waitSnapshot(t, h.client, func(s Snapshot) bool {
		return len(s.Messages) == 2 && s.Messages[0].Text != ""
	})
	if snap.Messages[0].Role != threads.RoleUser || snap.Messages[0].Text != "turn on the lights" {
		t.Fatalf("Messages[0] = %+v", snap.Messages[0])
	}
	if snap.Messages[1].Role != threads.RoleAssistant {
		t.Fatalf("Messages[1] = %+v", snap.Messages[1])
	}
}

func TestEmptyTranscriptRemovesPlaceholder(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	h.fr.send(t,
		`{"type":"input_audio_buffer.committed","item_id":"u1"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":""}`,
	)
	del := h.fr.expect(t, "conversation.item.delete")
	if del["item_id"] != "u1" {
		t.Fatalf("item_id = %v, want u1", del["item_id"])
	}
	if n := len(h.client.Snapshot().Messages); n != 0 {
		t.Fatalf("Messages = %d, want 0", n)
	}
}

func TestIntentGateHoldsOnContinuation(t *testing.T) {
	h := newHarness(t, true, func(o *Options) { o.IntentGate = true })
	h.connect(t)
	_ = h.client.StartListening()

	h.fr.send(t,
		`{"type":"input_audio_buffer.speech_stopped","item_id":"u1"}`,
		`{"type":"input_audio_buffer.committed","item_id":"u1"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u1","transcript":"remind me to buy milk and"}`,
	)
	if n := h.fr.count(200*time.Millisecond, "response.create"); n != 0 {
		t.Fatalf("response.create count = %d, want 0 while holding", n)
	}
	if v := h.client.Snapshot().Voice; v != conversation.VoiceListening {
		t.Fatalf("Voice = %s, want listening", v)
	}

	h.fr.send(t,
		`{"type":"input_audio_buffer.speech_stopped","item_id":"u2"}`,
		`{"type":"input_audio_buffer.committed","item_id":"u2"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u2","transcript":"eggs tomorrow."}`,
	)
	h.fr.expect(t, "response.create")
	waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Voice == conversation.VoiceProcessing })
}

func TestTransportDropMovesToError(t *testing.T) {
	h := newHarness(t, true, nil)
	h.connect(t)
	_ = h.fr.conn(t).Close()

	snap := waitSnapshot(t, h.client, func(s Snapshot) bool { return s.Connection.State == conversation.ConnError })
	if snap.Voice != conversation.VoiceIdle {
		t.Fatalf("Voice = %s, want idle", snap.Voice)
	}
	if snap.Configured {
		t.Fatalf("Configured = true after transport error")
	}
}

func TestStartListeningRequiresConnection(t *testing.T) {
	h := newHarness(t, true, nil)
	if err := h.client.StartListening(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("StartListening() error = %v, want ErrNotConnected", err)
	}
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed")
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %s not published", kind)
			return Event{}
		}
	}
}
