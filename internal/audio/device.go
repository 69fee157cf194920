package audio

import "context"

// Microphone yields captured frames until ctx ends or the device stops.
type Microphone interface {
	Start(ctx context.Context) (<-chan Frame, error)
}

// Speaker plays wire-format PCM16LE chunks.
type Speaker interface {
	Play(pcm []byte) error
	Stop() error
}
