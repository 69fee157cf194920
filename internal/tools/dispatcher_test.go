package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/glassvoice/internal/device"
	"github.com/ent0n29/glassvoice/internal/memory"
	"github.com/ent0n29/glassvoice/internal/search"
)

type stubTool struct {
	name   string
	active bool
	run    func(ctx context.Context, args json.RawMessage) (string, error)
}

func (s stubTool) Name() string                { return s.name }
func (s stubTool) Description() string         { return s.name }
func (s stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s stubTool) Active() bool                { return s.active }
func (s stubTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return s.run(ctx, args)
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func decodeFailure(t *testing.T, out string) failure {
	t.Helper()
	var f failure
	if err := json.Unmarshal([]byte(out), &f); err != nil {
		t.Fatalf("output %q is not JSON: %v", out, err)
	}
	if f.Success {
		t.Fatalf("output %q reports success", out)
	}
	return f
}

func TestDispatchConvertsErrorsAndPanics(t *testing.T) {
	d, err := NewDispatcher(time.Second, nil,
		stubTool{name: "boom", active: true, run: func(context.Context, json.RawMessage) (string, error) {
			panic("kaboom")
		}},
		stubTool{name: "broken", active: true, run: func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("disk full")
		}},
	)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	res, ok := d.Dispatch(context.Background(), Call{ID: "c1", Name: "boom"})
	if !ok || res.Success {
		t.Fatalf("Dispatch(boom) = %+v, %v", res, ok)
	}
	if f := decodeFailure(t, res.Output); f.Code != CodePanic {
		t.Fatalf("code = %q, want %q", f.Code, CodePanic)
	}

	res, _ = d.Dispatch(context.Background(), Call{ID: "c2", Name: "broken"})
	if f := decodeFailure(t, res.Output); f.Error != "disk full" {
		t.Fatalf("error = %q, want disk full", f.Error)
	}

	res, _ = d.Dispatch(context.Background(), Call{ID: "c3", Name: "nope"})
	if f := decodeFailure(t, res.Output); f.Code != CodeUnknownTool {
		t.Fatalf("code = %q, want %q", f.Code, CodeUnknownTool)
	}
}

func TestDispatchIgnoresDuplicateCallID(t *testing.T) {
	calls := 0
	d, _ := NewDispatcher(time.Second, nil, stubTool{name: "echo", active: true, run: func(context.Context, json.RawMessage) (string, error) {
		calls++
		return `{"success":true}`, nil
	}})
	if _, ok := d.Dispatch(context.Background(), Call{ID: "same", Name: "echo"}); !ok {
		t.Fatalf("first Dispatch() ok = false")
	}
	if _, ok := d.Dispatch(context.Background(), Call{ID: "same", Name: "echo"}); ok {
		t.Fatalf("duplicate Dispatch() ok = true")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	d.Reset()
	if _, ok := d.Dispatch(context.Background(), Call{ID: "same", Name: "echo"}); !ok {
		t.Fatalf("Dispatch() after Reset ok = false")
	}
}

func TestDispatchTimeout(t *testing.T) {
	d, _ := NewDispatcher(20*time.Millisecond, nil, stubTool{name: "slow", active: true, run: func(ctx context.Context, _ json.RawMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}})
	res, _ := d.Dispatch(context.Background(), Call{ID: "t", Name: "slow"})
	if f := decodeFailure(t, res.Output); f.Code != CodeTimeout {
		t.Fatalf("code = %q, want %q", f.Code, CodeTimeout)
	}
}

func TestDefinitionsSortedAndIncludeInactive(t *testing.T) {
	d, _ := NewDispatcher(time.Second, nil,
		NewSearchInternet(search.NewClient("")),
		NewManageMemory(memory.NewInMemoryStore()),
		NewTakePhoto(nil, nil, 0),
	)
	defs := d.Definitions()
	if len(defs) != 3 {
		t.Fatalf("len(defs) = %d, want 3", len(defs))
	}
	names := []string{defs[0].Name, defs[1].Name, defs[2].Name}
	want := []string{"manage_memory", "search_internet", "take_photo"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if err := d.Register(NewTakePhoto(nil, nil, 0)); err == nil {
		t.Fatalf("duplicate Register() error = nil")
	}
}

func TestSearchWithoutCredentialReportsNotConfigured(t *testing.T) {
	d, _ := NewDispatcher(time.Second, nil, NewSearchInternet(search.NewClient("")))
	res, ok := d.Dispatch(context.Background(), Call{ID: "s1", Name: "search_internet", Arguments: json.RawMessage(`{"query":"weather"}`)})
	if !ok {
		t.Fatalf("Dispatch() ok = false")
	}
	if res.Success {
		t.Fatalf("Success = true without credential")
	}
	if !strings.Contains(res.Output, "not configured") {
		t.Fatalf("output = %q, want mention of not configured", res.Output)
	}
	if f := decodeFailure(t, res.Output); f.Code != CodeNotConfigured {
		t.Fatalf("code = %q, want %q", f.Code, CodeNotConfigured)
	}
}

type fakeCamera struct {
	photo device.Photo
	err   error
}

func (c fakeCamera) Available() bool { return true }
func (c fakeCamera) CapturePhoto(context.Context) (device.Photo, error) {
	return c.photo, c.err
}

func TestTakePhotoStoresAndReturnsReference(t *testing.T) {
	store := device.NewPhotoStore(4)
	tool := NewTakePhoto(fakeCamera{photo: device.Photo{Data: []byte{0xff, 0xd8, 0x01}}}, store, time.Second)
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var got struct {
		Success bool   `json:"success"`
		PhotoID string `json:"photo_id"`
		Bytes   int    `json:"bytes"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if !got.Success || got.Bytes != 3 || !strings.HasPrefix(got.PhotoID, "photo_") {
		t.Fatalf("output = %+v", got)
	}
	if _, err := store.Get(got.PhotoID); err != nil {
		t.Fatalf("photo not stored: %v", err)
	}
}

func TestTakePhotoDeviceFailure(t *testing.T) {
	tool := NewTakePhoto(fakeCamera{err: errors.New("camera busy")}, device.NewPhotoStore(1), time.Second)
	_, err := tool.Execute(context.Background(), nil)
	var te *ToolError
	if !errors.As(err, &te) || te.Code != CodeDeviceError {
		t.Fatalf("Execute() error = %v, want DEVICE_ERROR", err)
	}
}
