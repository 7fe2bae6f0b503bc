// Package component creates live component instances from component
// configurations.
//
// Component(name, cfg) returns a Factory for one component type. The first
// instantiation of any component in an App resolves the App's plugins; the
// first instantiation of a type builds its Definition and, unless the
// configuration carries precompiled Code, generates render code from its
// template. Every instantiation then wires a new Instance:
//
//  1. identifiers, lifecycle, parent, root and holder references
//  2. reactive props and state (the state function sees resolved props)
//  3. lifecycle init
//  4. render: the children of the instance are created on the stage
//  5. hook subscriptions for the declared lifecycle hooks
//  6. template bindings and watchers registered as effects
//  7. lifecycle ready, deferred to the next tick of the engine loop
//
// An Instance is the receiver of every configured function:
//
//	var Counter = component.Component("Counter", component.Config{
//		Props: []string{"step"},
//		State: func(c *component.Instance) map[string]any {
//			return map[string]any{"count": 0}
//		},
//		Computed: component.Computed{
//			"label": func(c *component.Instance) any {
//				return fmt.Sprint("count: ", c.Get("count"))
//			},
//		},
//		Template: `<Element><Text :content="$label" /></Element>`,
//	})
package component

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-drift/beam/pkg/codegen"
	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/errors"
	"github.com/go-drift/beam/pkg/lifecycle"
	"github.com/go-drift/beam/pkg/render"
	"github.com/go-drift/beam/pkg/template"
)

// Computed maps names to derived values. A computed value is recomputed on
// every read, so its reactive reads are tracked by whoever reads it.
type Computed map[string]func(c *Instance) any

// Methods maps names to component methods, callable from templates
// ($name(args)) and event handlers (@event="$name").
type Methods map[string]func(c *Instance, args ...any) any

// Watchers maps state paths ("focused", "user.name") to callbacks invoked
// with the new and the previous value whenever the value changes.
type Watchers map[string]func(c *Instance, value, old any)

// Hooks are lifecycle callbacks. Declaring Attach, Detach, Enter or Exit
// also subscribes the instance to the matching node events; declaring
// FrameTick or Idle subscribes it to the renderer events.
type Hooks struct {
	Init    func(c *Instance)
	Ready   func(c *Instance)
	Attach  func(c *Instance)
	Detach  func(c *Instance)
	Enter   func(c *Instance)
	Exit    func(c *Instance)
	Hover   func(c *Instance)
	Unhover func(c *Instance)
	Destroy func(c *Instance)

	FrameTick func(c *Instance, frame engine.FrameInfo)
	Idle      func(c *Instance)
}

func (h *Hooks) forState(s lifecycle.State) func(c *Instance) {
	switch s {
	case lifecycle.Init:
		return h.Init
	case lifecycle.Ready:
		return h.Ready
	case lifecycle.Attach:
		return h.Attach
	case lifecycle.Detach:
		return h.Detach
	case lifecycle.Enter:
		return h.Enter
	case lifecycle.Exit:
		return h.Exit
	case lifecycle.Hover:
		return h.Hover
	case lifecycle.Unhover:
		return h.Unhover
	case lifecycle.Destroy:
		return h.Destroy
	}
	return nil
}

// Config describes a component type.
type Config struct {
	// Props lists the accepted props. Props passed by a parent that are not
	// listed are forwarded to the holder node (x, y, w, h and the like).
	Props []string
	// State returns the initial state. It runs once per instance, after
	// props are resolved.
	State    func(c *Instance) map[string]any
	Computed Computed
	Methods  Methods
	Watch    Watchers
	Hooks    Hooks

	// Template is the markup source. Tree may carry an already parsed
	// template instead, and Code precompiled render code; Code wins over
	// Tree, Tree over Template.
	Template string
	Tree     *template.Node
	Code     *render.Code

	// Components resolves component tags used by the template before the
	// App's global components.
	Components render.Components
}

// Definition is the per-type table shared by all instances of a component.
type Definition struct {
	name  string
	cfg   Config
	props map[string]bool

	setupOnce sync.Once

	mu    sync.Mutex
	code  *render.Code
	count int
}

// Name returns the component type name.
func (d *Definition) Name() string { return d.name }

// Config returns the configuration the definition was built from.
func (d *Definition) Config() Config { return d.cfg }

// setup runs once per type, on its first instantiation.
func (d *Definition) setup(log *slog.Logger) {
	d.setupOnce.Do(func() {
		log.Debug(fmt.Sprintf("Setting up %s component", d.name))
		d.props = make(map[string]bool, len(d.cfg.Props))
		for _, p := range d.cfg.Props {
			d.props[p] = true
		}
	})
}

// Code returns the render code of the type, generating it from the
// template on first use.
func (d *Definition) Code(log *slog.Logger) (*render.Code, error) {
	if d.cfg.Code != nil {
		return d.cfg.Code, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.code != nil {
		return d.code, nil
	}
	if log == nil {
		log = slog.Default()
	}
	log.Debug(fmt.Sprintf("Generating code for %s component", d.name))

	root := d.cfg.Tree
	if root == nil {
		if d.cfg.Template == "" {
			d.code = &render.Code{Render: renderNothing}
			return d.code, nil
		}
		doc, err := template.Parse(d.cfg.Template)
		if err != nil {
			return nil, &errors.BeamError{Op: "component.Code", Kind: errors.KindTemplate, Component: d.name, Err: err}
		}
		root = doc.Root()
		if root == nil {
			d.code = &render.Code{Render: renderNothing}
			return d.code, nil
		}
	}
	code, err := codegen.Generate(root, codegen.Options{Name: d.name})
	if err != nil {
		return nil, &errors.BeamError{Op: "component.Code", Kind: errors.KindCodegen, Component: d.name, Err: err}
	}
	d.code = code
	return code, nil
}

func renderNothing(render.Stage, render.Node, render.Instance, render.Config, render.Components, render.Effects, render.RawFunc, *slog.Logger) ([]*render.Child, error) {
	return nil, nil
}

// nextID returns the human readable id of a new instance: the type name
// followed by a per-type counter.
func (d *Definition) nextID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	return fmt.Sprintf("%s%d", d.name, d.count)
}

// Factory creates instances of one component type. It implements
// render.Factory, so factories can be registered as components of other
// components.
type Factory struct {
	def *Definition
}

var _ render.Factory = (*Factory)(nil)

// Component returns the factory of a component type. It panics when name
// is empty.
func Component(name string, cfg Config) *Factory {
	if name == "" {
		panic("component: name is required")
	}
	return &Factory{def: &Definition{name: name, cfg: cfg}}
}

// Name implements render.Factory.
func (f *Factory) Name() string { return f.def.name }

// Props implements render.Factory.
func (f *Factory) Props() []string { return slices.Clone(f.def.cfg.Props) }

// Definition returns the type definition.
func (f *Factory) Definition() *Definition { return f.def }

// New implements render.Factory. The parent must be an Instance; root
// instances are created with App.Mount.
func (f *Factory) New(parent render.Instance, holder render.Node, props map[string]any) (render.Instance, error) {
	p, ok := parent.(*Instance)
	if !ok || p == nil {
		return nil, fmt.Errorf("component: %s: parent is not a component instance", f.def.name)
	}
	c, err := f.def.instantiate(p.app, p, holder, props)
	if err != nil {
		return nil, err
	}
	return c, nil
}
