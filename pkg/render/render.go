// Package render defines the contract between generated template code, the
// component factory and the host renderer.
//
// A template compiles to a Code value: a RenderFunc that materializes the
// children of one component instance on a Stage, and a list of EffectFunc
// bindings that keep node properties in sync with the instance's reactive
// data. Everything a render call needs is passed explicitly; nothing is
// looked up from package state. Precompiled Code built by hand is therefore
// interchangeable with Code produced by the generator.
package render

import (
	"log/slog"

	"github.com/go-drift/beam/pkg/reactivity"
)

// Node events emitted by the renderer when a node's render state changes.
const (
	EventInBounds      = "inBounds"
	EventOutOfBounds   = "outOfBounds"
	EventInViewport    = "inViewport"
	EventOutOfViewport = "outOfViewport"
)

// Built-in node types. Any other tag name in a template refers to a component.
const (
	TypeElement = "Element"
	TypeText    = "Text"
	TypeSlot    = "Slot"
)

// RenderState is the position of a node relative to the bounds margin and
// the viewport, as reported by the renderer.
type RenderState int

const (
	StateInit        RenderState = 0
	StateOutOfBounds RenderState = 2
	StateInBounds    RenderState = 4
	StateInViewport  RenderState = 8
)

func (s RenderState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateOutOfBounds:
		return "outOfBounds"
	case StateInBounds:
		return "inBounds"
	case StateInViewport:
		return "inViewport"
	default:
		return "unknown"
	}
}

// StateEvent is the payload of the bounds and viewport node events.
type StateEvent struct {
	Previous RenderState
	Current  RenderState
}

// Node is one element of the renderer's scene graph.
type Node interface {
	// Type returns the node type the node was created with.
	Type() string
	// Set assigns a property. Structured values (map[string]any) carry a
	// "value" entry plus modifiers such as "transition"; without "value"
	// the target comes from the modifier ({transition: 40} or
	// {transition: {v: 40, d: 2000}}).
	Set(prop string, value any)
	// Get returns the current value of a property.
	Get(prop string) (any, bool)
	// On subscribes to a node event and returns a function removing the
	// subscription.
	On(event string, fn func(data any)) (off func())
	// Parent returns the parent node, or nil for the root.
	Parent() Node
	// Remove detaches the node and its descendants from the scene.
	Remove()
}

// Stage creates renderer nodes.
type Stage interface {
	CreateNode(typ string, parent Node) Node
	Root() Node
}

// Instance is the surface of a component instance seen by generated code.
type Instance interface {
	// Lookup resolves a $name in the instance scope: state, props, computed
	// values and methods, in that order.
	Lookup(name string) (any, bool)
	// ID returns the human readable instance id.
	ID() string
	// Holder returns the node the instance renders into.
	Holder() Node
	// SetProp updates a reactive prop.
	SetProp(name string, value any)
	// Invoke calls a component method by name.
	Invoke(method string, args ...any) error
	// Listen subscribes to events emitted by the instance.
	Listen(event string, fn func(data any)) (off func())
	// SetRef records a child under a :ref name.
	SetRef(name string, child *Child)
	// Destroy tears the instance down.
	Destroy()
}

// Factory instantiates one component type.
type Factory interface {
	// Name returns the component type name.
	Name() string
	// Props lists the props the component accepts.
	Props() []string
	// New creates an instance rendering into holder.
	New(parent Instance, holder Node, props map[string]any) (Instance, error)
}

// Components resolves component tags to factories.
type Components interface {
	Component(name string) (Factory, bool)
}

// ComponentMap is a Components backed by a map.
type ComponentMap map[string]Factory

// Component implements Components.
func (m ComponentMap) Component(name string) (Factory, bool) {
	f, ok := m[name]
	return f, ok
}

// Merge returns a Components that resolves names against each argument in
// turn.
func Merge(sets ...Components) Components {
	return componentChain(sets)
}

type componentChain []Components

func (c componentChain) Component(name string) (Factory, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if f, ok := s.Component(name); ok {
			return f, true
		}
	}
	return nil, false
}

// Child is one materialized template node: a renderer node and, for
// component tags, the component instance rendering into it.
type Child struct {
	Type      string
	Node      Node
	Component Instance
	// Slot marks children that receive content injected by a parent.
	Slot bool
	// Ref is the :ref name, if any.
	Ref string
}

// Destroy tears the child down: the component first, then its node.
func (c *Child) Destroy() {
	if c.Component != nil {
		c.Component.Destroy()
	}
	if c.Node != nil {
		c.Node.Remove()
	}
}

// Stopper stops a registered effect.
type Stopper interface {
	Stop()
}

// Effects is the effect registration surface handed to render functions.
// Effects registered through it belong to the instance and stop when it is
// destroyed.
type Effects interface {
	// Effect registers fn as an effect and runs it once.
	Effect(fn func()) Stopper
	// Untracked runs fn without recording dependencies.
	Untracked(fn func())
	// Reactive wraps values in a container of the instance's tracker.
	Reactive(values map[string]any) reactivity.Container
	// OnDestroy registers fn to run when the owner is torn down. The
	// returned function unregisters fn without running it.
	OnDestroy(fn func()) (remove func())
}

// RawFunc unwraps reactive containers into plain values.
type RawFunc func(v any) any

// Config is the descriptor of the component type being rendered. Render
// code receives it as given by the component package (a *component.Config)
// and must not modify it.
type Config any

// RenderFunc materializes the children of inst under parent and returns them
// in depth-first template order; the first entry is the wrapper element.
type RenderFunc func(stage Stage, parent Node, inst Instance, config Config, components Components, effects Effects, raw RawFunc, log *slog.Logger) ([]*Child, error)

// EffectFunc applies one reactive binding to the children returned by the
// render call. It is run inside an effect, so every value it reads is
// tracked.
type EffectFunc func(inst Instance, children []*Child, config Config, raw RawFunc, log *slog.Logger)

// Code is the compiled form of a template.
type Code struct {
	Render  RenderFunc
	Effects []EffectFunc
}
