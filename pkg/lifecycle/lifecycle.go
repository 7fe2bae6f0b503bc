// Package lifecycle tracks the phase of a component instance.
//
// States are not ordered: apart from init preceding ready, transitions are
// driven by external events (viewport changes, hover, teardown). Every
// accepted transition is reported to the owner's hook function.
//
// Once a lifecycle reaches Destroy it stops reporting a state. Other
// subsystems use that as a liveness check instead of holding a separate
// "destroyed" flag:
//
//	if _, ok := c.Lifecycle().State(); !ok {
//	    return // torn down, ignore late events
//	}
package lifecycle

// State is a lifecycle phase.
type State string

const (
	Init    State = "init"
	Attach  State = "attach"
	Enter   State = "enter"
	Ready   State = "ready"
	Hover   State = "hover"
	Unhover State = "unhover"
	Detach  State = "detach"
	Exit    State = "exit"
	Destroy State = "destroy"
)

// States lists every valid state.
var States = []State{Init, Attach, Enter, Ready, Hover, Unhover, Detach, Exit, Destroy}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, v := range States {
		if v == s {
			return true
		}
	}
	return false
}

// HookFunc receives every accepted transition.
type HookFunc func(l *Lifecycle, state State)

// Lifecycle holds the current and previous state of one component.
type Lifecycle struct {
	component any
	previous  State
	current   State
	destroyed bool
	hook      HookFunc
}

// New creates a lifecycle for component. The hook may be nil.
func New(component any, hook HookFunc) *Lifecycle {
	return &Lifecycle{component: component, hook: hook}
}

// Component returns the back-reference given to New.
func (l *Lifecycle) Component() any {
	return l.component
}

// State returns the current state. The second result is false before the
// first transition and after Destroy.
func (l *Lifecycle) State() (State, bool) {
	if l == nil || l.destroyed || l.current == "" {
		return "", false
	}
	return l.current, true
}

// Is reports whether the lifecycle is alive and in state s.
func (l *Lifecycle) Is(s State) bool {
	cur, ok := l.State()
	return ok && cur == s
}

// Previous returns the state before the current one.
func (l *Lifecycle) Previous() State {
	return l.previous
}

// Current returns the last accepted state, even after destroy.
func (l *Lifecycle) Current() State {
	return l.current
}

// Alive reports whether Destroy has not been reached.
func (l *Lifecycle) Alive() bool {
	return l != nil && !l.destroyed
}

// Set moves to state s and runs the hook. Unknown states, repeated writes
// of the current state and writes after destroy are ignored; Set reports
// whether the transition happened.
func (l *Lifecycle) Set(s State) bool {
	if l == nil || l.destroyed || !s.Valid() || s == l.current {
		return false
	}
	l.previous = l.current
	l.current = s
	if l.hook != nil {
		l.hook(l, s)
	}
	if s == Destroy {
		l.destroyed = true
	}
	return true
}
