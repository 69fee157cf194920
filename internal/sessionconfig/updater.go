package sessionconfig

import (
	"time"

	"github.com/ent0n29/glassvoice/internal/debounce"
)

// Updater coalesces reconfiguration requests: N requests inside the window
// produce one push.
type Updater struct {
	delay    time.Duration
	push     func()
	debounce *debounce.Trailing
}

func NewUpdater(delay time.Duration, push func()) *Updater {
	if delay < 0 {
		delay = 0
	}
	return &Updater{delay: delay, push: push, debounce: debounce.New()}
}

func (u *Updater) Request() { u.debounce.Schedule(u.push, u.delay) }

// Cancel drops a pending update, e.g. on disconnect.
func (u *Updater) Cancel() { u.debounce.Cancel() }

func (u *Updater) Stop() { u.debounce.Stop() }
