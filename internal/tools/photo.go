package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/device"
)

// Camera captures a still photo on the glasses.
type Camera interface {
	CapturePhoto(ctx context.Context) (device.Photo, error)
	Available() bool
}

type PhotoSaver interface {
	Put(p device.Photo) string
}

type TakePhoto struct {
	camera  Camera
	photos  PhotoSaver
	timeout time.Duration
}

func NewTakePhoto(camera Camera, photos PhotoSaver, timeout time.Duration) *TakePhoto {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TakePhoto{camera: camera, photos: photos, timeout: timeout}
}

func (t *TakePhoto) Name() string { return "take_photo" }

func (t *TakePhoto) Description() string {
	return "Take a photo with the user's glasses camera. Use when the user asks you to capture, snap or remember what they are looking at."
}

func (t *TakePhoto) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t *TakePhoto) Active() bool {
	return t.camera != nil && t.photos != nil && t.camera.Available()
}

func (t *TakePhoto) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	photo, err := t.camera.CapturePhoto(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", NewToolError(CodeDeviceError, "camera did not respond in time")
		}
		var de *audio.DeviceError
		if errors.As(err, &de) {
			return "", NewToolError(CodeDeviceError, de.Error())
		}
		return "", NewToolError(CodeDeviceError, "photo capture failed").WithDetail("error", err.Error())
	}
	if len(photo.Data) == 0 {
		return "", NewToolError(CodeDeviceError, "camera returned an empty photo")
	}
	id := t.photos.Put(photo)
	return okJSON(map[string]any{"photo_id": id, "bytes": len(photo.Data)}), nil
}
