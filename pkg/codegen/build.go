package codegen

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-drift/beam/pkg/errors"
	"github.com/go-drift/beam/pkg/expr"
	"github.com/go-drift/beam/pkg/reactivity"
	"github.com/go-drift/beam/pkg/render"
)

func (g *generator) renderFunc(root *plan) render.RenderFunc {
	name := g.name
	return func(stage render.Stage, parent render.Node, inst render.Instance, _ render.Config, components render.Components, effects render.Effects, raw render.RawFunc, log *slog.Logger) ([]*render.Child, error) {
		if raw == nil {
			raw = reactivity.Raw
		}
		if log == nil {
			log = slog.Default()
		}
		b := &builder{
			name:       name,
			stage:      stage,
			inst:       inst,
			components: components,
			raw:        raw,
			log:        log,
		}
		var children []*render.Child
		if err := b.build(root, parent, inst, effects, &children, false); err != nil {
			return children, err
		}
		return children, nil
	}
}

// builder materializes plans for one render call.
type builder struct {
	name       string
	stage      render.Stage
	inst       render.Instance
	components render.Components
	raw        render.RawFunc
	log        *slog.Logger
}

// build creates the nodes of p under parent and appends them to out.
// Bindings of static plans are left to the generated effect functions;
// inside regions (dynamic) they are registered through fx.
func (b *builder) build(p *plan, parent render.Node, scope expr.Scope, fx render.Effects, out *[]*render.Child, dynamic bool) error {
	switch {
	case p.loop != nil:
		b.loopRegion(p.loop, parent, scope, fx)
		return nil
	case p.cond != nil:
		b.condRegion(p, parent, scope, fx)
		return nil
	case p.fragment:
		for _, c := range p.children {
			if err := b.build(c, parent, scope, fx, out, dynamic); err != nil {
				return err
			}
		}
		return nil
	}
	return b.create(p, parent, scope, fx, out, dynamic)
}

func (b *builder) create(p *plan, parent render.Node, scope expr.Scope, fx render.Effects, out *[]*render.Child, dynamic bool) error {
	child := &render.Child{Type: p.typ, Slot: p.slot, Ref: p.ref}

	switch p.typ {
	case render.TypeElement, render.TypeText, render.TypeSlot:
		child.Node = b.stage.CreateNode(p.typ, parent)
		for _, s := range p.static {
			child.Node.Set(s.name, s.value)
		}
	default:
		if err := b.component(p, child, parent, scope); err != nil {
			return err
		}
	}
	*out = append(*out, child)

	if p.ref != "" && b.inst != nil {
		b.inst.SetRef(p.ref, child)
	}
	for _, ev := range p.events {
		b.listen(ev, child, scope)
	}
	if dynamic {
		for _, bd := range p.bindings {
			fx.Effect(func() { apply(bd, child, scope, b.raw, b.log) })
		}
	}

	// children of a component tag are slot content
	into := child.Node
	if child.Component != nil {
		if s, ok := child.Component.(interface{ SlotNode() render.Node }); ok {
			into = s.SlotNode()
		}
	}
	for _, c := range p.children {
		if err := b.build(c, into, scope, fx, out, dynamic); err != nil {
			return err
		}
	}
	return nil
}

// component instantiates a component tag. Initial prop values are
// evaluated here; the bindings keep them current afterwards.
func (b *builder) component(p *plan, child *render.Child, parent render.Node, scope expr.Scope) error {
	holder := b.stage.CreateNode(render.TypeElement, parent)
	child.Node = holder

	f, ok := lookup(b.components, p.typ)
	if !ok {
		errors.Report(&errors.BeamError{
			Op:        "codegen.render",
			Kind:      errors.KindRender,
			Component: b.name,
			Err:       fmt.Errorf("unknown component type %q", p.typ),
		})
		for _, s := range p.static {
			holder.Set(s.name, s.value)
		}
		return nil
	}

	props := make(map[string]any, len(p.static)+len(p.bindings))
	for _, s := range p.static {
		props[s.name] = s.value
	}
	for _, bd := range p.bindings {
		v, err := bd.eval(scope)
		if err != nil {
			b.log.Error("binding failed", "component", b.name, "prop", bd.prop, "err", err)
			continue
		}
		props[bd.prop] = b.raw(v)
	}
	inst, err := f.New(b.inst, holder, props)
	if err != nil {
		holder.Remove()
		return fmt.Errorf("codegen: %s: create %s: %w", b.name, p.typ, err)
	}
	child.Component = inst
	return nil
}

func lookup(c render.Components, name string) (render.Factory, bool) {
	if c == nil {
		return nil, false
	}
	return c.Component(name)
}

func (b *builder) listen(ev event, child *render.Child, scope expr.Scope) {
	handler := func(data any) {
		if ev.method != "" {
			if b.inst == nil {
				return
			}
			if err := b.inst.Invoke(ev.method, data); err != nil {
				b.log.Error("event handler failed", "component", b.name, "event", ev.name, "err", err)
			}
			return
		}
		if _, err := ev.value(expr.Chain(expr.Vars{"event": data}, scope)); err != nil {
			b.log.Error("event handler failed", "component", b.name, "event", ev.name, "err", err)
		}
	}
	if child.Component != nil {
		child.Component.Listen(ev.name, handler)
		return
	}
	child.Node.On(ev.name, handler)
}

func (bd binding) eval(scope expr.Scope) (any, error) {
	v, err := bd.value(scope)
	if err != nil {
		return nil, err
	}
	if bd.transform != nil {
		v = bd.transform(v)
	}
	return v, nil
}

// apply evaluates a binding and assigns the result to the child. Component
// children receive it as a prop; the component forwards props it does not
// declare to its holder node.
func apply(bd binding, child *render.Child, scope expr.Scope, raw render.RawFunc, log *slog.Logger) {
	v, err := bd.eval(scope)
	if err != nil {
		log.Error("binding failed", "prop", bd.prop, "err", err)
		return
	}
	if raw != nil {
		v = raw(v)
	}
	if child.Component != nil {
		child.Component.SetProp(bd.prop, v)
		return
	}
	child.Node.Set(bd.prop, v)
}

// region owns the effects and children of one :if body or :for entry.
type region struct {
	parent    render.Effects
	detach    func()
	stoppers  []render.Stopper
	pruneAt   int
	disposers []*func()
	children  []*render.Child
	done      bool
}

func newRegion(parent render.Effects) *region {
	r := &region{parent: parent}
	r.detach = parent.OnDestroy(r.teardown)
	return r
}

func (r *region) Effect(fn func()) render.Stopper {
	s := r.parent.Effect(fn)
	if len(r.stoppers) >= r.pruneAt {
		// nested regions stop their effects long before this one ends
		r.stoppers = slices.DeleteFunc(r.stoppers, stopped)
		r.pruneAt = max(2*len(r.stoppers), 16)
	}
	r.stoppers = append(r.stoppers, s)
	return s
}

func stopped(s render.Stopper) bool {
	st, ok := s.(interface{ Stopped() bool })
	return ok && st.Stopped()
}

func (r *region) Untracked(fn func()) { r.parent.Untracked(fn) }

func (r *region) Reactive(values map[string]any) reactivity.Container {
	return r.parent.Reactive(values)
}

func (r *region) OnDestroy(fn func()) (remove func()) {
	p := &fn
	r.disposers = append(r.disposers, p)
	return func() {
		if i := slices.Index(r.disposers, p); i >= 0 {
			r.disposers = slices.Delete(r.disposers, i, i+1)
		}
	}
}

// teardown stops the region's effects, runs its disposers in reverse order
// and destroys its children. It also unregisters the region from its
// parent. It is safe to call twice.
func (r *region) teardown() {
	if r.done {
		return
	}
	r.done = true
	r.detach()
	for _, s := range r.stoppers {
		s.Stop()
	}
	disposers := r.disposers
	r.disposers = nil
	for i := len(disposers) - 1; i >= 0; i-- {
		(*disposers[i])()
	}
	for i := len(r.children) - 1; i >= 0; i-- {
		r.children[i].Destroy()
	}
	r.stoppers, r.children = nil, nil
}

// condRegion registers the effect gating a :if subtree.
func (b *builder) condRegion(p *plan, parent render.Node, scope expr.Scope, fx render.Effects) {
	body := *p
	body.cond = nil
	var current *region
	fx.Effect(func() {
		v, err := p.cond(scope)
		if err != nil {
			b.log.Error("condition failed", "component", b.name, "node", p.typ, "err", err)
			v = false
		}
		show := truthy(v)
		fx.Untracked(func() {
			switch {
			case show && current == nil:
				current = newRegion(fx)
				if err := b.build(&body, parent, scope, current, &current.children, true); err != nil {
					b.log.Error("render failed", "component", b.name, "node", p.typ, "err", err)
				}
			case !show && current != nil:
				current.teardown()
				current = nil
			}
		})
	})
}

type loopEntry struct {
	vars   reactivity.Container
	region *region
}

// loopRegion registers the effect expanding a :for directive. Entries are
// matched by key across updates: surviving entries get their loop variables
// updated in place, new keys are built and missing keys torn down.
func (b *builder) loopRegion(lp *loopPlan, parent render.Node, scope expr.Scope, fx render.Effects) {
	entries := map[string]*loopEntry{}
	fx.Effect(func() {
		src, err := lp.source(scope)
		if err != nil {
			b.log.Error("loop source failed", "component", b.name, "node", lp.body.typ, "err", err)
			return
		}
		list, err := toList(src)
		if err != nil {
			b.log.Error("loop source failed", "component", b.name, "node", lp.body.typ, "err", err)
			return
		}
		fx.Untracked(func() {
			next := make(map[string]*loopEntry, len(list))
			for i, item := range list {
				vars := expr.Vars{lp.item: item, lp.index: i}
				key := fmt.Sprint(i)
				if lp.key != nil {
					k, err := lp.key(expr.Chain(vars, scope))
					if err != nil {
						b.log.Error("loop key failed", "component", b.name, "node", lp.body.typ, "err", err)
					} else {
						key = fmt.Sprint(k)
					}
				}
				if _, dup := next[key]; dup {
					key = fmt.Sprintf("%s#%d", key, i)
				}

				if e, ok := entries[key]; ok {
					e.vars.Set(lp.item, item)
					e.vars.Set(lp.index, i)
					next[key] = e
					delete(entries, key)
					continue
				}
				e := &loopEntry{vars: fx.Reactive(map[string]any{lp.item: item, lp.index: i})}
				e.region = newRegion(fx)
				entryScope := expr.Chain(containerScope{e.vars}, scope)
				if err := b.build(lp.body, parent, entryScope, e.region, &e.region.children, true); err != nil {
					b.log.Error("render failed", "component", b.name, "node", lp.body.typ, "err", err)
				}
				next[key] = e
			}
			for _, e := range entries {
				e.region.teardown()
			}
			entries = next
		})
	})
}

// containerScope resolves names against a reactive container.
type containerScope struct {
	c reactivity.Container
}

func (s containerScope) Lookup(name string) (any, bool) {
	if !s.c.Has(name) {
		return nil, false
	}
	return s.c.Get(name), true
}
