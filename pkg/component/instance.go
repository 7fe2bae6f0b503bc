package component

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/errors"
	"github.com/go-drift/beam/pkg/focus"
	"github.com/go-drift/beam/pkg/lifecycle"
	"github.com/go-drift/beam/pkg/reactivity"
	"github.com/go-drift/beam/pkg/render"
)

// hasFocusKey is the state key mirroring primary focus. Templates read it
// as $hasFocus.
const hasFocusKey = "$hasFocus"

// Instance is a live component.
//
// Instance is NOT thread-safe. Like the tracker it belongs to, it must only
// be used from the goroutine driving the App's loop.
type Instance struct {
	app    *App
	def    *Definition
	id     string
	serial uint64

	parent *Instance
	root   *Instance
	holder render.Node
	lc     *lifecycle.Lifecycle

	props reactivity.Container
	state reactivity.Container

	children []*render.Child
	wrapper  *render.Child
	slots    []*render.Child
	refs     map[string]*render.Child

	effects   []*reactivity.Effect
	pruneAt   int
	watchers  map[string]*watcher
	timers    map[engine.TimerID]struct{}
	events    engine.Emitter
	disposers []*disposer
	disposed  bool
}

type disposer struct{ fn func() }

var (
	_ render.Instance = (*Instance)(nil)
	_ render.Effects  = (*Instance)(nil)
	_ focus.Focusable = (*Instance)(nil)
)

// instantiate builds one instance. Construction runs untracked so that an
// instance created from inside an effect (a :if or :for region of its
// parent) does not become a dependency of that effect.
func (d *Definition) instantiate(app *App, parent *Instance, holder render.Node, props map[string]any) (*Instance, error) {
	app.launch()
	d.setup(app.log)
	code, err := d.Code(app.log)
	if err != nil {
		return nil, err
	}

	c := &Instance{
		app:      app,
		def:      d,
		id:       d.nextID(),
		serial:   app.nextSerial(),
		parent:   parent,
		holder:   holder,
		refs:     map[string]*render.Child{},
		watchers: map[string]*watcher{},
		timers:   map[engine.TimerID]struct{}{},
	}
	c.root = c
	if parent != nil {
		c.root = parent.root
	}
	c.lc = lifecycle.New(c, c.onLifecycle)

	app.tracker.Untracked(func() { err = c.init(code, props) })
	if err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Instance) init(code *render.Code, props map[string]any) error {
	app := c.app
	mode := app.settings.ReactivityMode

	declared := make(map[string]any, len(c.def.props))
	for k, v := range props {
		if c.def.props[k] {
			declared[k] = v
		} else {
			c.holder.Set(k, v)
		}
	}
	c.props = app.tracker.Reactive(declared, mode)

	var initial map[string]any
	if c.def.cfg.State != nil {
		initial = c.def.cfg.State(c)
	}
	initial = maps.Clone(initial)
	if initial == nil {
		initial = map[string]any{}
	}
	initial[hasFocusKey] = false
	c.state = app.tracker.Reactive(initial, mode)

	c.lc.Set(lifecycle.Init)

	components := render.Merge(c.def.cfg.Components, app.components)
	children, err := code.Render(app.stage, c.holder, c, &c.def.cfg, components, c, reactivity.Raw, app.log)
	c.children = children
	if err != nil {
		return &errors.BeamError{Op: "component.render", Kind: errors.KindRender, Component: c.def.name, Err: err}
	}
	if len(children) > 0 {
		c.wrapper = children[0]
	}
	for _, ch := range children {
		if ch.Slot {
			c.slots = append(c.slots, ch)
		}
	}

	c.subscribeHooks()

	for _, ef := range code.Effects {
		c.Effect(func() { ef(c, c.children, &c.def.cfg, reactivity.Raw, app.log) })
	}
	for _, key := range slices.Sorted(maps.Keys(c.def.cfg.Watch)) {
		c.watch(key, c.def.cfg.Watch[key])
	}

	app.loop.Dispatch(func() { c.lc.Set(lifecycle.Ready) })
	return nil
}

// subscribeHooks connects the declared hooks to renderer and node events.
func (c *Instance) subscribeHooks() {
	h := &c.def.cfg.Hooks
	if h.FrameTick != nil {
		c.OnDestroy(c.app.loop.On(engine.EventFrameTick, func(data any) {
			frame, _ := data.(engine.FrameInfo)
			c.callHook("frameTick", func() { h.FrameTick(c, frame) })
		}))
	}
	if h.Idle != nil {
		c.OnDestroy(c.app.loop.On(engine.EventIdle, func(any) {
			c.callHook("idle", func() { h.Idle(c) })
		}))
	}

	node := c.holder
	if c.wrapper != nil && c.wrapper.Node != nil {
		node = c.wrapper.Node
	}
	if h.Attach != nil {
		c.OnDestroy(node.On(render.EventInBounds, func(any) {
			c.lc.Set(lifecycle.Attach)
		}))
	}
	if h.Detach != nil {
		// the initial layout reports outOfBounds from init; only a node that
		// was placed before can detach
		c.OnDestroy(node.On(render.EventOutOfBounds, func(data any) {
			if ev, ok := data.(render.StateEvent); ok && ev.Previous > 0 {
				c.lc.Set(lifecycle.Detach)
			}
		}))
	}
	if h.Enter != nil {
		c.OnDestroy(node.On(render.EventInViewport, func(any) {
			c.lc.Set(lifecycle.Enter)
		}))
	}
	if h.Exit != nil {
		c.OnDestroy(node.On(render.EventOutOfViewport, func(any) {
			c.lc.Set(lifecycle.Exit)
		}))
	}
}

// onLifecycle runs the hook of every accepted lifecycle transition.
func (c *Instance) onLifecycle(_ *lifecycle.Lifecycle, s lifecycle.State) {
	if fn := c.def.cfg.Hooks.forState(s); fn != nil {
		c.callHook(string(s), func() { fn(c) })
	}
}

// callHook runs user code untracked. With IsolateHooks a panic is reported
// instead of propagated. Nothing runs once the instance is destroyed: an
// event being emitted keeps calling the handlers it started with.
func (c *Instance) callHook(name string, fn func()) {
	if !c.lc.Alive() {
		return
	}
	c.app.tracker.Untracked(func() {
		if c.app.isolateHooks {
			defer errors.Recover("component."+c.def.name+"."+name, c.def.name)
		}
		fn()
	})
}

// ID returns the human readable id, the type name plus a counter
// ("Menu3").
func (c *Instance) ID() string { return c.id }

// Serial returns the App-wide internal id.
func (c *Instance) Serial() uint64 { return c.serial }

// Name returns the component type name.
func (c *Instance) Name() string { return c.def.name }

// App returns the application context.
func (c *Instance) App() *App { return c.app }

// Lifecycle returns the lifecycle of the instance.
func (c *Instance) Lifecycle() *lifecycle.Lifecycle { return c.lc }

// Parent returns the parent instance, nil for a root.
func (c *Instance) Parent() *Instance { return c.parent }

// ParentTarget implements focus.Target.
func (c *Instance) ParentTarget() focus.Target {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

// Root returns the root instance of the tree.
func (c *Instance) Root() *Instance { return c.root }

// Holder returns the node the instance renders into.
func (c *Instance) Holder() render.Node { return c.holder }

// Wrapper returns the first rendered child, or nil.
func (c *Instance) Wrapper() *render.Child { return c.wrapper }

// Children returns the rendered children in template order.
func (c *Instance) Children() []*render.Child { return c.children }

// Slots returns the children flagged as slots.
func (c *Instance) Slots() []*render.Child { return c.slots }

// SlotNode returns the node receiving content placed between the tags of
// this component in a parent template: the first slot, or the holder.
func (c *Instance) SlotNode() render.Node {
	if len(c.slots) > 0 && c.slots[0].Node != nil {
		return c.slots[0].Node
	}
	return c.holder
}

// Lookup resolves a template name: state, props, computed values, methods,
// then $hasFocus and $componentId, then plugins.
func (c *Instance) Lookup(name string) (any, bool) {
	if c.state != nil && c.state.Has(name) {
		return c.state.Get(name), true
	}
	if c.def.props[name] {
		if c.props == nil {
			return nil, true
		}
		return c.props.Get(name), true
	}
	if fn, ok := c.def.cfg.Computed[name]; ok {
		return fn(c), true
	}
	if m, ok := c.def.cfg.Methods[name]; ok {
		return func(args ...any) any { return m(c, args...) }, true
	}
	switch name {
	case "hasFocus":
		if c.state == nil {
			return false, true
		}
		return c.state.Get(hasFocusKey), true
	case "componentId":
		return c.id, true
	}
	if p, ok := c.app.plugins[name]; ok {
		return p, true
	}
	return nil, false
}

// Get returns the value of a state key, prop, computed value or method.
// Reads inside effects are tracked.
func (c *Instance) Get(name string) any {
	v, _ := c.Lookup(name)
	return v
}

// Set writes a state key. Props are owned by the parent and cannot be set.
func (c *Instance) Set(name string, value any) {
	if c.def.props[name] {
		c.app.log.Warn("cannot set prop from inside the component", "component", c.id, "prop", name)
		return
	}
	if c.state == nil {
		c.app.log.Warn("state written before it was created", "component", c.id, "key", name)
		return
	}
	c.state.Set(name, value)
}

// State returns the reactive state container.
func (c *Instance) State() reactivity.Container { return c.state }

// Props returns the reactive props container.
func (c *Instance) Props() reactivity.Container { return c.props }

// SetProp implements render.Instance. Undeclared props go to the holder.
func (c *Instance) SetProp(name string, value any) {
	if c.def.props[name] {
		c.props.Set(name, value)
		return
	}
	c.holder.Set(name, value)
}

// Invoke implements render.Instance.
func (c *Instance) Invoke(method string, args ...any) error {
	_, err := c.Call(method, args...)
	return err
}

// Call runs a method and returns its result.
func (c *Instance) Call(method string, args ...any) (any, error) {
	m, ok := c.def.cfg.Methods[method]
	if !ok {
		return nil, fmt.Errorf("component: %s: unknown method %q", c.id, method)
	}
	return m(c, args...), nil
}

// Plugin returns an App plugin.
func (c *Instance) Plugin(name string) any {
	return c.app.plugins[name]
}

// Emit sends an event to the parent template's @event handlers on this
// instance and to App-wide listeners.
func (c *Instance) Emit(event string, data any) {
	c.events.Emit(event, data)
	c.app.bus.Emit(event, data)
}

// Listen implements render.Instance: it subscribes to events emitted by
// this instance.
func (c *Instance) Listen(event string, fn func(data any)) (off func()) {
	return c.events.On(event, fn)
}

// On subscribes to App-wide events until the instance is destroyed.
func (c *Instance) On(event string, fn func(data any)) (off func()) {
	off = c.app.bus.On(event, fn)
	c.OnDestroy(off)
	return off
}

// SetRef implements render.Instance.
func (c *Instance) SetRef(name string, child *render.Child) {
	c.refs[name] = child
}

// Select returns the child recorded under a :ref name.
func (c *Instance) Select(ref string) *render.Child {
	return c.refs[ref]
}

// Focus gives the instance primary focus and hovers it.
func (c *Instance) Focus() {
	c.app.focus.Focus(c)
}

// HasFocus reports whether the instance holds primary focus.
func (c *Instance) HasFocus() bool {
	v, _ := c.state.Get(hasFocusKey).(bool)
	return v
}

// SetHasFocus implements focus.Focusable.
func (c *Instance) SetHasFocus(hasFocus bool) {
	c.state.Set(hasFocusKey, hasFocus)
}

// Effect implements render.Effects. The effect is stopped on Destroy.
func (c *Instance) Effect(fn func()) render.Stopper {
	e := c.app.tracker.Effect(fn)
	c.track(e)
	return e
}

// track keeps e for Destroy. Effects stopped early, such as those of a
// removed :if body, are dropped each time the list doubles.
func (c *Instance) track(e *reactivity.Effect) {
	if len(c.effects) >= c.pruneAt {
		c.effects = slices.DeleteFunc(c.effects, (*reactivity.Effect).Stopped)
		c.pruneAt = max(2*len(c.effects), 16)
	}
	c.effects = append(c.effects, e)
}

// Untracked implements render.Effects.
func (c *Instance) Untracked(fn func()) {
	c.app.tracker.Untracked(fn)
}

// Reactive implements render.Effects.
func (c *Instance) Reactive(values map[string]any) reactivity.Container {
	return c.app.tracker.Reactive(values, c.app.settings.ReactivityMode)
}

// OnDestroy registers a cleanup function to run when the instance is
// destroyed. Cleanups run in reverse order. After Destroy, fn runs
// immediately. The returned function unregisters fn.
func (c *Instance) OnDestroy(fn func()) (remove func()) {
	if fn == nil {
		return func() {}
	}
	if c.disposed {
		fn()
		return func() {}
	}
	d := &disposer{fn: fn}
	c.disposers = append(c.disposers, d)
	return func() {
		// regions unregister in roughly LIFO order
		for i := len(c.disposers) - 1; i >= 0; i-- {
			if c.disposers[i] == d {
				c.disposers = slices.Delete(c.disposers, i, i+1)
				return
			}
		}
	}
}

// Destroy tears the instance down: timers are cleared, effects stopped,
// cleanups run, children destroyed depth first and the holder removed.
// The lifecycle then moves to destroy and reports no state from there on.
// Destroy is idempotent.
func (c *Instance) Destroy() {
	if c.disposed {
		return
	}
	c.disposed = true

	for id := range c.timers {
		c.app.loop.ClearTimer(id)
	}
	c.timers = nil

	for _, e := range c.effects {
		e.Stop()
	}
	c.effects = nil

	disposers := c.disposers
	c.disposers = nil
	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i].fn()
	}

	for i := len(c.children) - 1; i >= 0; i-- {
		c.children[i].Destroy()
	}
	c.holder.Remove()

	c.lc.Set(lifecycle.Destroy)
	c.app.focus.Remove(c)
}

// Destroyed reports whether Destroy has run.
func (c *Instance) Destroyed() bool { return c.disposed }
