// Package engine provides the host event loop that drives beam components.
//
// A Loop owns three queues that are serviced once per frame by Step:
//
//   - the dispatch queue ("next tick"): callbacks scheduled with Dispatch run
//     at the start of the next frame, after the current synchronous work;
//   - timers: one-shot timeouts and repeating intervals, fired when the
//     clock passes their due time;
//   - renderer events: frameTick is emitted every frame, idle on frames in
//     which nothing was dispatched and no timer fired.
//
// Callbacks may be scheduled from any goroutine, but they always run on the
// goroutine calling Step.
package engine

import (
	"sort"
	"sync"
	"time"
)

// TimerID identifies a pending timeout or interval. The zero value is never
// issued.
type TimerID int

// FrameInfo is the payload of the frameTick event.
type FrameInfo struct {
	Frame int
	Time  time.Time
	Delta time.Duration
}

// Loop is a cooperative single-threaded event loop.
type Loop struct {
	Emitter

	clock Clock

	mu            sync.Mutex
	dispatchQueue []func()
	timers        map[TimerID]*timer
	nextTimer     TimerID
	frame         int
	lastFrame     time.Time
	ring          *frameRing
}

type timer struct {
	id       TimerID
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       func()

	cancelled bool
}

// New returns a Loop reading time from clock. A nil clock uses system time.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{
		clock:  clock,
		timers: make(map[TimerID]*timer),
	}
}

// Now returns the loop's current time.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// Dispatch schedules fn to run on the next tick.
func (l *Loop) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.dispatchQueue = append(l.dispatchQueue, fn)
	l.mu.Unlock()
}

func (l *Loop) drainDispatchQueue() []func() {
	l.mu.Lock()
	callbacks := l.dispatchQueue
	l.dispatchQueue = nil
	l.mu.Unlock()
	return callbacks
}

// SetTimeout runs fn once after d.
func (l *Loop) SetTimeout(fn func(), d time.Duration) TimerID {
	return l.addTimer(fn, d, false)
}

// SetInterval runs fn every d until cleared.
func (l *Loop) SetInterval(fn func(), d time.Duration) TimerID {
	return l.addTimer(fn, d, true)
}

func (l *Loop) addTimer(fn func(), d time.Duration, repeat bool) TimerID {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTimer++
	t := &timer{
		id:       l.nextTimer,
		due:      l.clock.Now().Add(d),
		interval: d,
		repeat:   repeat,
		fn:       fn,
	}
	l.timers[t.id] = t
	return t.id
}

// ClearTimer cancels a timeout or interval. Clearing an unknown or already
// fired timer is a no-op.
func (l *Loop) ClearTimer(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[id]; ok {
		t.cancelled = true
		delete(l.timers, id)
	}
}

// Pending reports the number of queued dispatch callbacks and timers.
func (l *Loop) Pending() (dispatched, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.dispatchQueue), len(l.timers)
}

// dueTimers returns the timers due at now, ordered by due time then
// creation. Repeating timers are rescheduled, one-shot timers removed.
func (l *Loop) dueTimers(now time.Time) []*timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []*timer
	for _, t := range l.timers {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	for _, t := range due {
		if t.repeat {
			t.due = now.Add(t.interval)
		} else {
			delete(l.timers, t.id)
		}
	}
	return due
}

// fire runs t unless an earlier callback of the same frame cleared it.
func (l *Loop) fire(t *timer) {
	l.mu.Lock()
	cancelled := t.cancelled
	l.mu.Unlock()
	if !cancelled {
		t.fn()
	}
}

// RunPending drains the dispatch queue, including callbacks queued by the
// callbacks it runs, and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		callbacks := l.drainDispatchQueue()
		if len(callbacks) == 0 {
			return n
		}
		for _, cb := range callbacks {
			cb()
		}
		n += len(callbacks)
	}
}

// Step runs one frame: the dispatch queue as it stood when the frame began,
// then due timers, then the frameTick event, then idle when the frame did
// no other work.
func (l *Loop) Step() FrameInfo {
	start := l.clock.Now()
	callbacks := l.drainDispatchQueue()
	for _, cb := range callbacks {
		cb()
	}

	now := l.clock.Now()
	fired := l.dueTimers(now)
	for _, t := range fired {
		l.fire(t)
	}

	l.mu.Lock()
	l.frame++
	info := FrameInfo{Frame: l.frame, Time: now}
	if !l.lastFrame.IsZero() {
		info.Delta = now.Sub(l.lastFrame)
	}
	l.lastFrame = now
	l.mu.Unlock()

	idle := len(callbacks) == 0 && len(fired) == 0
	l.Emit(EventFrameTick, info)
	if idle {
		l.Emit(EventIdle, info)
	}

	l.mu.Lock()
	if l.ring != nil {
		d := l.clock.Now().Sub(start)
		l.ring.record(FrameSample{
			Frame:      info.Frame,
			At:         now.UnixMilli(),
			Ms:         millis(d),
			Dispatched: len(callbacks),
			Timers:     len(fired),
			Idle:       idle,
		}, d)
	}
	l.mu.Unlock()
	return info
}
