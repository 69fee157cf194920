package audio

import (
	"errors"
	"log"
	"sync"
)

var ErrPlayerClosed = errors.New("audio: player closed")

// Player owns the playback goroutine. Chunks are played in order; Interrupt
// discards everything queued and drops the chunk in flight.
type Player struct {
	speaker Speaker

	mu      sync.Mutex
	queue   [][]byte
	epoch   uint64
	playing bool
	muted   bool
	closed  bool
	waiters []func()

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewPlayer(speaker Speaker) *Player {
	p := &Player{
		speaker: speaker,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Player) Enqueue(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.muted {
		p.mu.Unlock()
		return nil
	}
	p.queue = append(p.queue, pcm)
	p.mu.Unlock()
	p.signal()
	return nil
}

// Interrupt drops queued audio, stops the speaker and releases drain waiters.
func (p *Player) Interrupt() error {
	p.mu.Lock()
	p.epoch++
	p.queue = nil
	p.playing = false
	waiters := p.takeWaitersLocked()
	p.mu.Unlock()

	runAll(waiters)
	if p.speaker == nil {
		return nil
	}
	if err := p.speaker.Stop(); err != nil {
		return &DeviceError{Op: "playback_stop", Err: err}
	}
	return nil
}

// SetMuted drops queued audio while muted; later chunks are discarded until
// unmuted.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	var waiters []func()
	if muted {
		p.epoch++
		p.queue = nil
		p.playing = false
		waiters = p.takeWaitersLocked()
	}
	p.mu.Unlock()
	runAll(waiters)
}

// Idle reports whether nothing is queued or playing.
func (p *Player) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && !p.playing
}

// NotifyWhenDrained calls fn once the queue is empty. fn runs without locks
// held and may run before NotifyWhenDrained returns.
func (p *Player) NotifyWhenDrained(fn func()) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.closed || (len(p.queue) == 0 && !p.playing) {
		p.mu.Unlock()
		fn()
		return
	}
	p.waiters = append(p.waiters, fn)
	p.mu.Unlock()
}

func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.epoch++
	p.queue = nil
	waiters := p.takeWaitersLocked()
	p.mu.Unlock()

	close(p.stop)
	<-p.done
	runAll(waiters)
	return nil
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		p.drain()
	}
}

func (p *Player) drain() {
	for {
		p.mu.Lock()
		if p.closed || len(p.queue) == 0 {
			p.playing = false
			waiters := p.takeWaitersLocked()
			p.mu.Unlock()
			runAll(waiters)
			return
		}
		chunk := p.queue[0]
		p.queue = p.queue[1:]
		p.playing = true
		epoch := p.epoch
		p.mu.Unlock()

		if p.speaker == nil {
			continue
		}
		p.mu.Lock()
		stale := epoch != p.epoch
		p.mu.Unlock()
		if stale {
			continue
		}
		if err := p.speaker.Play(chunk); err != nil {
			log.Printf("audio: %v", &DeviceError{Op: "playback", Err: err})
		}
	}
}

func (p *Player) takeWaitersLocked() []func() {
	w := p.waiters
	p.waiters = nil
	return w
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
