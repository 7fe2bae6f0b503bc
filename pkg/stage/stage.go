// Package stage is an in-memory implementation of the renderer contract.
//
// It keeps the scene graph as plain Go values, normalizes color properties
// and lets the host (or a test) move nodes between bounds and viewport
// states, emitting the node events components subscribe to. It is used by
// the CLI and the test harness; a real renderer implements the same
// render.Stage and render.Node interfaces.
package stage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/render"
)

// Stage owns a tree of Nodes.
type Stage struct {
	mu     sync.Mutex
	root   *Node
	nextID int
}

// New returns a stage whose root node has the given size.
func New(w, h float64) *Stage {
	s := &Stage{}
	s.root = s.newNode(render.TypeElement, nil)
	s.root.props["w"] = w
	s.root.props["h"] = h
	return s
}

var _ render.Stage = (*Stage)(nil)

// Root returns the root node.
func (s *Stage) Root() render.Node { return s.root }

// RootNode returns the root node with its concrete type.
func (s *Stage) RootNode() *Node { return s.root }

// CreateNode creates a node of typ under parent. A nil parent attaches the
// node to the root.
func (s *Stage) CreateNode(typ string, parent render.Node) render.Node {
	p, _ := parent.(*Node)
	if p == nil {
		p = s.root
	}
	n := s.newNode(typ, p)
	p.mu.Lock()
	p.children = append(p.children, n)
	p.mu.Unlock()
	return n
}

func (s *Stage) newNode(typ string, parent *Node) *Node {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return &Node{
		id:        id,
		typ:       typ,
		parent:    parent,
		props:     make(map[string]any),
		modifiers: make(map[string]map[string]any),
	}
}

// Node is a headless scene graph node.
type Node struct {
	engine.Emitter

	mu        sync.Mutex
	id        int
	typ       string
	parent    *Node
	children  []*Node
	props     map[string]any
	modifiers map[string]map[string]any
	state     render.RenderState
	removed   bool
}

var _ render.Node = (*Node)(nil)

// ID returns the node's stage-unique id.
func (n *Node) ID() int { return n.id }

// Type implements render.Node.
func (n *Node) Type() string { return n.typ }

// Set implements render.Node. String values of color properties are
// converted to 0xRRGGBBAA; unparsable colors are kept as written. A
// structured value assigns its "value" entry and records the remaining
// entries as modifiers of the property. Without a "value" entry the target
// comes from the modifiers: {transition: 40} and
// {transition: {v: 40, d: 2000}} both assign 40.
func (n *Node) Set(prop string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m, ok := value.(map[string]any); ok {
		mods := make(map[string]any, len(m))
		for k, v := range m {
			if k != "value" {
				mods[k] = v
			}
		}
		if len(mods) > 0 {
			n.modifiers[prop] = mods
		} else {
			delete(n.modifiers, prop)
		}
		v, hasValue := m["value"]
		if !hasValue {
			v, hasValue = modifierTarget(mods)
		}
		if !hasValue {
			return
		}
		value = v
	}
	if str, ok := value.(string); ok && isColorProp(prop) {
		if c, ok := ParseColor(str); ok {
			value = c
		}
	}
	n.props[prop] = value
}

// modifierTarget returns the value a modifier-only assignment moves the
// property to. A scalar modifier is the target itself; a map modifier
// carries it under "value" or "v". Modifiers are consulted by name so the
// result does not depend on map order.
func modifierTarget(mods map[string]any) (any, bool) {
	names := make([]string, 0, len(mods))
	for k := range mods {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		inner, ok := mods[name].(map[string]any)
		if !ok {
			return mods[name], true
		}
		for _, key := range []string{"value", "v"} {
			if v, ok := inner[key]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Get implements render.Node.
func (n *Node) Get(prop string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.props[prop]
	return v, ok
}

// Props returns a copy of the node's properties.
func (n *Node) Props() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	props := make(map[string]any, len(n.props))
	for k, v := range n.props {
		props[k] = v
	}
	return props
}

// Modifiers returns the modifiers recorded for prop.
func (n *Node) Modifiers(prop string) map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.modifiers[prop]
}

// Parent implements render.Node.
func (n *Node) Parent() render.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Children returns the live child nodes.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

// Remove implements render.Node. Removing a node twice is a no-op.
func (n *Node) Remove() {
	n.mu.Lock()
	if n.removed {
		n.mu.Unlock()
		return
	}
	n.removed = true
	children := n.children
	n.children = nil
	parent := n.parent
	n.mu.Unlock()

	for _, c := range children {
		c.Remove()
	}
	if parent != nil {
		parent.mu.Lock()
		for i, c := range parent.children {
			if c == n {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		parent.mu.Unlock()
	}
}

// Removed reports whether the node was removed.
func (n *Node) Removed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.removed
}

// RenderState returns the node's current render state.
func (n *Node) RenderState() render.RenderState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetRenderState moves the node to state and emits the matching events:
// inBounds when the node enters the bounds margin (directly or on its way
// into the viewport), inViewport and outOfViewport on viewport crossings,
// outOfBounds when it leaves the margin.
func (n *Node) SetRenderState(state render.RenderState) {
	n.mu.Lock()
	prev := n.state
	if prev == state || n.removed {
		n.mu.Unlock()
		return
	}
	n.state = state
	n.mu.Unlock()

	ev := render.StateEvent{Previous: prev, Current: state}
	if prev == render.StateInViewport {
		n.Emit(render.EventOutOfViewport, ev)
	}
	switch state {
	case render.StateInBounds:
		n.Emit(render.EventInBounds, ev)
	case render.StateInViewport:
		if prev != render.StateInBounds {
			n.Emit(render.EventInBounds, ev)
		}
		n.Emit(render.EventInViewport, ev)
	case render.StateOutOfBounds:
		n.Emit(render.EventOutOfBounds, ev)
	}
}

// Find returns the first live descendant (depth first) whose prop equals
// value.
func (n *Node) Find(prop string, value any) *Node {
	for _, c := range n.Children() {
		if v, ok := c.Get(prop); ok && v == value {
			return c
		}
		if f := c.Find(prop, value); f != nil {
			return f
		}
	}
	return nil
}

// Dump renders the subtree as indented text, one node per line with its
// properties sorted by name. It is meant for tests and the CLI.
func (n *Node) Dump() string {
	var b strings.Builder
	n.dump(&b, 0)
	return b.String()
}

func (n *Node) dump(b *strings.Builder, depth int) {
	n.mu.Lock()
	keys := make([]string, 0, len(n.props))
	for k := range n.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.typ)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, n.props[k])
	}
	b.WriteByte('\n')
	n.mu.Unlock()
	for _, c := range n.Children() {
		c.dump(b, depth+1)
	}
}
