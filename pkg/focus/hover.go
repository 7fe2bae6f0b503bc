package focus

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/go-drift/beam/pkg/lifecycle"
)

// Chain is the hover chain. Index 0 is the root, the last entry is the
// hovered leaf. Every entry carries lifecycle state hover; entries leaving
// the chain are moved to unhover.
type Chain struct {
	log     *slog.Logger
	hovered Target
	path    []Target
}

// NewChain returns an empty chain. nil log selects slog.Default.
func NewChain(log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{log: log}
}

// Get returns the hovered leaf, or nil.
func (c *Chain) Get() Target {
	return c.hovered
}

// Path returns a copy of the chain, root first.
func (c *Chain) Path() []Target {
	return slices.Clone(c.path)
}

// Set hovers t. If t is a child of the current leaf the chain grows by one;
// otherwise entries of the old chain that are not ancestors of t are
// unhovered, walking back from the leaf and stopping at the first shared
// ancestor.
func (c *Chain) Set(t Target) {
	if t == nil || t == c.hovered {
		return
	}

	switch {
	case c.hovered == nil:
		c.path = Ancestors(t)
	case len(c.path) > 0 && c.path[len(c.path)-1] == t.ParentTarget():
		c.path = append(c.path, t)
	default:
		next := Ancestors(t)
		for i := len(c.path) - 1; i >= 0; i-- {
			if slices.Contains(next, c.path[i]) {
				break
			}
			transition(c.path[i], lifecycle.Unhover)
		}
		c.path = next
	}

	for _, entry := range c.path[:len(c.path)-1] {
		transition(entry, lifecycle.Hover)
	}
	c.apply(t)
}

// apply hovers the leaf and traces the chain.
func (c *Chain) apply(t Target) {
	c.log.Info("hover chain", "chain", c.trace())
	c.hovered = t
	transition(t, lifecycle.Hover)
}

// Clear unhovers every entry and empties the chain.
func (c *Chain) Clear() {
	if c.hovered == nil {
		return
	}
	for _, entry := range c.path {
		transition(entry, lifecycle.Unhover)
	}
	c.hovered = nil
	c.path = nil
}

// Remove drops t and its descendants from the chain without touching their
// lifecycle. The nearest remaining ancestor becomes the leaf.
func (c *Chain) Remove(t Target) {
	i := slices.Index(c.path, t)
	if i < 0 {
		return
	}
	c.path = c.path[:i]
	if len(c.path) == 0 {
		c.hovered = nil
		c.path = nil
		return
	}
	c.hovered = c.path[len(c.path)-1]
}

func (c *Chain) trace() string {
	var b strings.Builder
	for i, entry := range c.path {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("\t", i))
		b.WriteString("↳ ")
		b.WriteString(entry.ID())
	}
	return b.String()
}

// transition sets state on t unless it has been torn down.
func transition(t Target, s lifecycle.State) {
	if !live(t) {
		return
	}
	t.Lifecycle().Set(s)
}
