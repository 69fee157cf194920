package audio

import (
	"context"
	"errors"
	"log"
	"sync"
)

var ErrCaptureActive = errors.New("audio: capture already active")

// Capture converts microphone frames to wire format and runs the local VAD.
type Capture struct {
	mic       Microphone
	threshold float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCapture(mic Microphone, vadThreshold float64) *Capture {
	return &Capture{mic: mic, threshold: vadThreshold}
}

// Start begins capture and hands every converted frame to sink from a
// dedicated goroutine. sink must not block for long.
func (c *Capture) Start(ctx context.Context, sink func(CapturedFrame)) error {
	if c.mic == nil {
		return &DeviceError{Op: "capture_start", Err: errors.New("no microphone")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
			c.cancel()
			c.cancel, c.done = nil, nil
		default:
			return ErrCaptureActive
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := c.mic.Start(runCtx)
	if err != nil {
		cancel()
		var de *DeviceError
		if errors.As(err, &de) {
			return err
		}
		return &DeviceError{Op: "capture_start", Err: err}
	}

	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go c.run(runCtx, frames, sink, done)
	return nil
}

func (c *Capture) run(ctx context.Context, frames <-chan Frame, sink func(CapturedFrame), done chan struct{}) {
	defer close(done)
	vad := NewEnergyVAD(c.threshold)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			samples, err := ToWire(f)
			if err != nil {
				log.Printf("audio: dropping capture frame: %v", err)
				continue
			}
			if len(samples) == 0 {
				continue
			}
			rms := RMS(samples)
			sink(CapturedFrame{
				PCM:    EncodePCM16LE(samples),
				Speech: vad.Process(rms),
				RMS:    rms,
			})
		}
	}
}

// Active reports whether a capture goroutine is running.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Stop ends capture and waits for the goroutine to exit. Safe to call when
// capture is not running.
func (c *Capture) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
