package device

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/protocol"
)

type fakeController struct {
	mu      sync.Mutex
	actions []string
}

func (c *fakeController) record(a string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, a)
	if a == "force_response" {
		return errors.New("not listening")
	}
	return nil
}

func (c *fakeController) Connect(_ context.Context, threadID string) error {
	return c.record("connect:" + threadID)
}
func (c *fakeController) Disconnect() error     { return c.record("disconnect") }
func (c *fakeController) StartListening() error { return c.record("start_listening") }
func (c *fakeController) StopListening() error  { return c.record("stop_listening") }
func (c *fakeController) ForceResponse() error  { return c.record("force_response") }
func (c *fakeController) SetMuted(muted bool) error {
	if muted {
		return c.record("mute")
	}
	return c.record("unmute")
}

func (c *fakeController) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

func startBridge(t *testing.T, b *Bridge) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Serve(context.Background(), conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, b.Attached)
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func readType(t *testing.T, conn *websocket.Conn, want protocol.MessageType) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg["type"] == string(want) {
			return msg
		}
	}
}

func TestBridgeForwardsControlsInOrder(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	ctrl := &fakeController{}
	b.SetController(ctrl)
	conn := startBridge(t, b)

	for _, raw := range []string{
		`{"type":"device_control","action":"connect","thread_id":"t1"}`,
		`{"type":"device_control","action":"start_listening"}`,
		`{"type":"device_control","action":"force_response"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	errEvent := readType(t, conn, protocol.TypeErrorEvent)
	if errEvent["code"] != "force_response_failed" {
		t.Fatalf("error code = %v, want force_response_failed", errEvent["code"])
	}
	got := ctrl.snapshot()
	want := []string{"connect:t1", "start_listening", "force_response"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestBridgeForwardsMute(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	ctrl := &fakeController{}
	b.SetController(ctrl)
	conn := startBridge(t, b)

	for _, raw := range []string{
		`{"type":"device_control","action":"mute"}`,
		`{"type":"device_control","action":"unmute"}`,
		`{"type":"device_control","action":"force_response"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}

	readType(t, conn, protocol.TypeErrorEvent)
	got := ctrl.snapshot()
	want := []string{"mute", "unmute", "force_response"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestBridgeRejectsInvalidMessage(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	conn := startBridge(t, b)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"device_control"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	msg := readType(t, conn, protocol.TypeErrorEvent)
	if msg["code"] != "invalid_device_message" {
		t.Fatalf("code = %v, want invalid_device_message", msg["code"])
	}
}

func TestBridgeMicrophoneDeliversFrames(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	if _, err := b.Start(context.Background()); err == nil {
		t.Fatalf("Start() without device error = nil, want DeviceError")
	} else {
		var de *audio.DeviceError
		if !errors.As(err, &de) || !errors.Is(err, ErrNoDevice) {
			t.Fatalf("Start() error = %v, want DeviceError wrapping ErrNoDevice", err)
		}
	}

	conn := startBridge(t, b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	frames, err := b.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	pcm := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})
	raw := `{"type":"device_audio_chunk","seq":1,"pcm16_base64":"` + pcm + `","sample_rate":16000}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case f := <-frames:
		if f.SampleRate != 16000 || f.Channels != 1 || len(f.PCM) != 4 {
			t.Fatalf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered")
	}

	cancel()
	select {
	case _, ok := <-frames:
		if ok {
			t.Fatalf("frames channel still open after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("frames channel not closed after cancel")
	}
}

func TestBridgeSpeakerSendsAudioAndStop(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	if err := b.Play([]byte{0, 0}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Play() without device error = %v, want ErrNoDevice", err)
	}
	conn := startBridge(t, b)

	if err := b.Play([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	msg := readType(t, conn, protocol.TypeAssistantAudio)
	if msg["audio_base64"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}) {
		t.Fatalf("audio_base64 = %v", msg["audio_base64"])
	}
	if msg["sample_rate"] != float64(audio.WireSampleRate) {
		t.Fatalf("sample_rate = %v, want %d", msg["sample_rate"], audio.WireSampleRate)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	stop := readType(t, conn, protocol.TypePlaybackStop)
	if stop["reason"] != "interrupted" {
		t.Fatalf("reason = %v, want interrupted", stop["reason"])
	}
}

func TestBridgeCapturePhotoRoundTrip(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	conn := startBridge(t, b)

	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] != string(protocol.TypeCapturePhoto) {
				continue
			}
			img := base64.StdEncoding.EncodeToString([]byte("jpegbytes"))
			reply := `{"type":"photo_result","request_id":"` + msg["request_id"].(string) + `","image_base64":"` + img + `","content_type":"image/jpeg"}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
			return
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	photo, err := b.CapturePhoto(ctx)
	if err != nil {
		t.Fatalf("CapturePhoto() error = %v", err)
	}
	if string(photo.Data) != "jpegbytes" || photo.ContentType != "image/jpeg" {
		t.Fatalf("photo = %+v", photo)
	}
}

func TestBridgeCapturePhotoDeviceError(t *testing.T) {
	b := NewBridge(BridgeOptions{})
	if b.Available() {
		t.Fatalf("Available() = true without device")
	}
	conn := startBridge(t, b)

	go func() {
		var msg map[string]any
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		reply := `{"type":"photo_result","request_id":"` + msg["request_id"].(string) + `","error":"camera busy"}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := b.CapturePhoto(ctx)
	var de *audio.DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("CapturePhoto() error = %v, want *audio.DeviceError", err)
	}
	if !strings.Contains(err.Error(), "camera busy") {
		t.Fatalf("error = %v, want camera busy", err)
	}
}

func TestPhotoStoreEvictsOldest(t *testing.T) {
	s := NewPhotoStore(2)
	first := s.Put(Photo{Data: []byte("a")})
	s.Put(Photo{Data: []byte("b")})
	s.Put(Photo{Data: []byte("c")})

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if _, err := s.Get(first); !errors.Is(err, ErrPhotoNotFound) {
		t.Fatalf("Get(first) error = %v, want ErrPhotoNotFound", err)
	}
	if !strings.HasPrefix(first, "photo_") {
		t.Fatalf("id = %q, want photo_ prefix", first)
	}
}
