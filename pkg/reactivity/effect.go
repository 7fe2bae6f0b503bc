package reactivity

import (
	"fmt"
	"sort"
)

// DefaultMaxDepth bounds nested effect runs within one synchronous flush.
const DefaultMaxDepth = 100

// CycleError is the panic value raised when effects keep triggering each
// other beyond the tracker's depth limit.
type CycleError struct {
	Depth int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reactivity: effect cascade exceeded depth %d", e.Depth)
}

// Tracker records which effect is running and links reads of reactive
// keys to it. One tracker serves a whole application; containers and
// effects created by different trackers never see each other.
//
// Tracker is NOT thread-safe. All reads, writes and effects must happen on
// the UI thread, as with the rest of the runtime.
type Tracker struct {
	stack    []*Effect
	nextID   uint64
	depth    int
	maxDepth int
}

// NewTracker returns a tracker with DefaultMaxDepth.
func NewTracker() *Tracker {
	return &Tracker{maxDepth: DefaultMaxDepth}
}

// SetMaxDepth changes the cascade limit. Values below 1 restore the default.
func (t *Tracker) SetMaxDepth(n int) {
	if n < 1 {
		n = DefaultMaxDepth
	}
	t.maxDepth = n
}

// Effect registers fn and runs it immediately. Every reactive key read
// during a run becomes a dependency; writing such a key re-runs fn
// synchronously. Dependencies are rebuilt on every run, so keys that a run
// no longer reads stop triggering it.
//
// A panic inside fn is not recovered. It propagates to whoever caused the
// run: the Effect call itself or the write that triggered it.
func (t *Tracker) Effect(fn func()) *Effect {
	t.nextID++
	e := &Effect{id: t.nextID, fn: fn, tracker: t}
	e.run()
	return e
}

// Untracked runs fn without recording dependencies for the current effect.
func (t *Tracker) Untracked(fn func()) {
	t.stack = append(t.stack, nil)
	defer func() { t.stack = t.stack[:len(t.stack)-1] }()
	fn()
}

// Active returns the effect currently recording dependencies, if any.
func (t *Tracker) Active() *Effect {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

func (t *Tracker) track(d *dep) {
	e := t.Active()
	if e == nil || e.stopped {
		return
	}
	if _, ok := d.subs[e]; ok {
		return
	}
	if d.subs == nil {
		d.subs = make(map[*Effect]struct{})
	}
	d.subs[e] = struct{}{}
	e.deps = append(e.deps, d)
}

// trigger re-runs the subscribers of d in registration order. Effects that
// are already running are skipped, which breaks self-triggering loops.
func (t *Tracker) trigger(d *dep) {
	if d == nil || len(d.subs) == 0 {
		return
	}
	effects := make([]*Effect, 0, len(d.subs))
	for e := range d.subs {
		effects = append(effects, e)
	}
	sort.Slice(effects, func(i, j int) bool { return effects[i].id < effects[j].id })
	for _, e := range effects {
		if e.running || e.stopped {
			continue
		}
		e.run()
	}
}

// dep is the subscriber set of one reactive key.
type dep struct {
	subs map[*Effect]struct{}
}

// Effect is a registered reactive closure.
type Effect struct {
	id      uint64
	fn      func()
	tracker *Tracker
	deps    []*dep
	running bool
	stopped bool
	runs    int
}

// Run re-executes the effect and rebuilds its dependencies. Running a
// stopped effect is a no-op.
func (e *Effect) Run() {
	if e.stopped || e.running {
		return
	}
	e.run()
}

func (e *Effect) run() {
	t := e.tracker
	if t.depth >= t.maxDepth {
		panic(&CycleError{Depth: t.maxDepth})
	}
	e.cleanup()
	t.depth++
	t.stack = append(t.stack, e)
	e.running = true
	defer func() {
		e.running = false
		t.stack = t.stack[:len(t.stack)-1]
		t.depth--
	}()
	e.runs++
	e.fn()
}

// cleanup drops every dependency edge of the effect.
func (e *Effect) cleanup() {
	for _, d := range e.deps {
		delete(d.subs, e)
	}
	e.deps = e.deps[:0]
}

// Stop detaches the effect from all dependencies. It never runs again.
func (e *Effect) Stop() {
	if e.stopped {
		return
	}
	e.stopped = true
	e.cleanup()
}

// Stopped reports whether Stop was called.
func (e *Effect) Stopped() bool {
	return e.stopped
}

// Dependencies returns the number of keys the last run read.
func (e *Effect) Dependencies() int {
	return len(e.deps)
}

// Runs returns how many times the effect has executed.
func (e *Effect) Runs() int {
	return e.runs
}
