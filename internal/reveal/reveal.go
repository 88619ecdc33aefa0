// Package reveal implements the typewriter animation: a fully known string is
// exposed one character per tick until it is complete.
package reveal

import (
	"sync"
	"time"
)

// DefaultInterval is the delay between two revealed characters.
const DefaultInterval = 20 * time.Millisecond

// State of an Animator.
type State int

const (
	Idle State = iota
	Revealing
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Revealing:
		return "Revealing"
	case Complete:
		return "Complete"
	}
	return "Unknown"
}

// Scheduler runs fn once after d and returns a function that cancels the run.
// Implementations must not call fn from within Schedule.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler schedules on wall-clock timers.
type TimerScheduler struct{}

// Schedule implements Scheduler with time.AfterFunc.
func (TimerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Animator reveals one text at a time. At most one tick is scheduled at any
// moment.
type Animator struct {
	mu sync.Mutex

	sched      Scheduler
	interval   time.Duration
	onComplete func()
	onTick     func(r rune)

	state  State
	text   []rune
	index  int
	cancel func()
	gen    uint64
}

// Option customises an Animator.
type Option func(*Animator)

// WithInterval sets the per-character delay.
func WithInterval(d time.Duration) Option {
	return func(a *Animator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// OnComplete registers fn to run once each time a text is fully revealed.
func OnComplete(fn func()) Option {
	return func(a *Animator) { a.onComplete = fn }
}

// OnTick registers fn to receive every revealed character.
func OnTick(fn func(r rune)) Option {
	return func(a *Animator) { a.onTick = fn }
}

// New creates an idle animator driven by s.
func New(s Scheduler, opts ...Option) *Animator {
	a := &Animator{sched: s, interval: DefaultInterval}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetText abandons any reveal in progress and starts revealing text from its
// first character. An empty text completes immediately.
func (a *Animator) SetText(text string) {
	a.mu.Lock()
	a.cancelLocked()
	a.text = []rune(text)
	a.index = 0
	a.state = Idle

	if len(a.text) == 0 {
		a.state = Complete
		done := a.onComplete
		a.mu.Unlock()
		if done != nil {
			done()
		}
		return
	}

	a.state = Revealing
	a.scheduleLocked()
	a.mu.Unlock()
}

// Stop tears the animator down. The pending tick is dropped and no
// completion fires for the unfinished text.
func (a *Animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	if a.state == Revealing {
		a.state = Idle
	}
}

// Text returns the revealed prefix.
func (a *Animator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.text[:a.index])
}

// Target returns the full text being revealed.
func (a *Animator) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.text)
}

// State returns the current state.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done reports whether the current text is fully revealed.
func (a *Animator) Done() bool {
	return a.State() == Complete
}

// Progress returns the number of revealed characters and the total.
func (a *Animator) Progress() (shown, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index, len(a.text)
}

func (a *Animator) scheduleLocked() {
	gen := a.gen
	a.cancel = a.sched.Schedule(a.interval, func() { a.tick(gen) })
}

// cancelLocked drops the pending tick. Bumping gen also discards a tick whose
// timer fired before it could be stopped.
func (a *Animator) cancelLocked() {
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// tick reveals one character. The next tick is scheduled only after onTick
// returns so callbacks observe characters in order.
func (a *Animator) tick(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.state != Revealing {
		a.mu.Unlock()
		return
	}
	a.cancel = nil
	r := a.text[a.index]
	a.index++

	var done func()
	last := a.index == len(a.text)
	if last {
		a.state = Complete
		done = a.onComplete
	}
	onTick := a.onTick
	a.mu.Unlock()

	if onTick != nil {
		onTick(r)
	}
	if last {
		if done != nil {
			done()
		}
		return
	}

	a.mu.Lock()
	if gen == a.gen && a.state == Revealing {
		a.scheduleLocked()
	}
	a.mu.Unlock()
}
