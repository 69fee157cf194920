package audio

import (
	"context"
	"log"
	"sync"
)

// Pipeline pairs microphone capture with speaker playback and keeps the
// current utterance so it can be dumped once committed.
type Pipeline struct {
	capture *Capture
	player  *Player
	dumper  *Dumper

	mu        sync.Mutex
	utterance []byte
}

type PipelineOptions struct {
	Microphone   Microphone
	Speaker      Speaker
	VADThreshold float64
	Dumper       *Dumper
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	return &Pipeline{
		capture: NewCapture(opts.Microphone, opts.VADThreshold),
		player:  NewPlayer(opts.Speaker),
		dumper:  opts.Dumper,
	}
}

func (p *Pipeline) StartCapture(ctx context.Context, sink func(CapturedFrame)) error {
	return p.capture.Start(ctx, sink)
}

func (p *Pipeline) StopCapture() { p.capture.Stop() }

// RecordAppended tracks audio that was sent to the input buffer.
func (p *Pipeline) RecordAppended(pcm []byte) {
	if p.dumper == nil {
		return
	}
	p.mu.Lock()
	p.utterance = append(p.utterance, pcm...)
	p.mu.Unlock()
}

// CommitUtterance dumps the tracked utterance, if dumping is enabled, and
// starts a new one.
func (p *Pipeline) CommitUtterance(label string) {
	p.mu.Lock()
	pcm := p.utterance
	p.utterance = nil
	p.mu.Unlock()
	if len(pcm) == 0 {
		return
	}
	path, err := p.dumper.Dump(label, pcm)
	if err != nil {
		log.Printf("audio: dump utterance: %v", err)
		return
	}
	if path != "" {
		log.Printf("audio: wrote %s (%d bytes)", path, len(pcm))
	}
}

// DiscardUtterance forgets tracked audio without dumping it.
func (p *Pipeline) DiscardUtterance() {
	p.mu.Lock()
	p.utterance = nil
	p.mu.Unlock()
}

func (p *Pipeline) Enqueue(pcm []byte) error    { return p.player.Enqueue(pcm) }
func (p *Pipeline) Interrupt() error            { return p.player.Interrupt() }
func (p *Pipeline) SetMuted(muted bool)         { p.player.SetMuted(muted) }
func (p *Pipeline) NotifyWhenDrained(fn func()) { p.player.NotifyWhenDrained(fn) }

func (p *Pipeline) Close() error {
	p.capture.Stop()
	p.DiscardUtterance()
	return p.player.Close()
}
