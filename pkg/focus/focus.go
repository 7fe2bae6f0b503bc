// Package focus tracks which component instance has focus and maintains
// the hover chain: the ancestor path from the focused leaf up to the root.
package focus

import (
	"log/slog"

	"github.com/go-drift/beam/pkg/lifecycle"
)

// Target is a component instance that can take part in the hover chain.
type Target interface {
	ID() string
	Lifecycle() *lifecycle.Lifecycle
	// ParentTarget returns the parent instance, or nil for the root.
	ParentTarget() Target
}

// Focusable is a Target that mirrors primary focus into its own state
// (the $hasFocus flag of a component).
type Focusable interface {
	Target
	SetHasFocus(hasFocus bool)
}

// Manager owns the primary focus and the hover chain of one application.
type Manager struct {
	chain   *Chain
	primary Focusable
}

// NewManager returns a manager with an empty hover chain. Hover traces are
// written to log; nil selects slog.Default.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{chain: NewChain(log)}
}

// Chain returns the hover chain.
func (m *Manager) Chain() *Chain {
	return m.chain
}

// Primary returns the instance holding primary focus, or nil.
func (m *Manager) Primary() Focusable {
	return m.primary
}

// Focus gives t primary focus and hovers it.
func (m *Manager) Focus(t Focusable) {
	if t == nil || !live(t) {
		return
	}
	m.setPrimaryFocus(t)
	m.chain.Set(t)
}

// Blur drops primary focus and clears the hover chain.
func (m *Manager) Blur() {
	m.setPrimaryFocus(nil)
	m.chain.Clear()
}

// Remove forgets a torn down instance. Its focus flag is left untouched.
func (m *Manager) Remove(t Target) {
	if t == nil {
		return
	}
	if m.primary != nil && Target(m.primary) == t {
		m.primary = nil
	}
	m.chain.Remove(t)
}

// setPrimaryFocus updates the primary focus to the given instance.
func (m *Manager) setPrimaryFocus(t Focusable) {
	if m.primary == t {
		return
	}
	if m.primary != nil && live(m.primary) {
		m.primary.SetHasFocus(false)
	}
	m.primary = t
	if t != nil {
		t.SetHasFocus(true)
	}
}

// live reports whether t still has a lifecycle state. Torn down instances
// report none.
func live(t Target) bool {
	_, ok := t.Lifecycle().State()
	return ok
}

// Ancestors returns the path from the root down to t, t included.
func Ancestors(t Target) []Target {
	var path []Target
	for cur := t; cur != nil; cur = cur.ParentTarget() {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
