// Package codegen compiles parsed templates into render code.
//
// Generate walks a template tree once and produces a render.Code value. Its
// RenderFunc creates the renderer nodes and child components of one
// instance; each reactive attribute of the static part of the tree becomes
// one EffectFunc that re-evaluates the bound expression and applies it to
// its node. Static attributes are coerced once at generation time and set
// during render only.
//
// Directives:
//
//	:attr="expr"           bound attribute, re-applied when its inputs change
//	attr="$x"              same, implied by a $name reference
//	attr.mod="v"           modifier, merged by the parser into {mod: v}
//	@event="$method"       node event (or component event) handler
//	:if="expr"             subtree created only while expr is truthy
//	:show="expr"           node always created, "visible" toggled
//	:for="item in $list"   one subtree per entry; also (item, index) in ...
//	key="$item.id"         identity of :for entries across updates
//	:ref="name"            child recorded on the instance
//	slot                   child flagged as a slot
//
// Nodes under :if and :for are created by effects registered during render,
// so their bindings are registered there as well.
package codegen

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-drift/beam/pkg/expr"
	"github.com/go-drift/beam/pkg/render"
	"github.com/go-drift/beam/pkg/template"
)

// Options configures code generation.
type Options struct {
	// Name is the component name used in error messages.
	Name string
}

// Error reports an attribute that could not be compiled.
type Error struct {
	Component string
	Node      string
	Attr      string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codegen: %s: <%s %s>: %v", e.Component, e.Node, e.Attr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// plan is the compiled form of one template node.
type plan struct {
	typ      string
	fragment bool
	// index is the position in the static children list, -1 inside :if and
	// :for regions.
	index    int
	static   []staticProp
	bindings []binding
	events   []event
	ref      string
	slot     bool
	cond     valueFunc
	loop     *loopPlan
	children []*plan
}

type staticProp struct {
	name  string
	value any
}

type binding struct {
	prop  string
	value valueFunc
	// transform post-processes the evaluated value (:show).
	transform func(any) any
}

type event struct {
	name   string
	method string
	value  valueFunc
}

type loopPlan struct {
	item   string
	index  string
	source valueFunc
	key    valueFunc
	body   *plan
}

var forPattern = regexp.MustCompile(`^\s*(?:\(\s*([A-Za-z_]\w*)\s*(?:,\s*([A-Za-z_]\w*)\s*)?\)|([A-Za-z_]\w*))\s+in\s+(.+?)\s*$`)

var methodPattern = regexp.MustCompile(`^\$([A-Za-z_]\w*)$`)

// Generate compiles the tree rooted at root.
func Generate(root *template.Node, opts Options) (*render.Code, error) {
	if root == nil {
		return nil, fmt.Errorf("codegen: %s: empty template", opts.Name)
	}
	g := &generator{name: opts.Name}
	p, err := g.compile(root)
	if err != nil {
		return nil, err
	}
	g.assign(p, false)

	code := &render.Code{Render: g.renderFunc(p)}
	g.collectEffects(p, code)
	return code, nil
}

// GenerateSource parses src and compiles it.
func GenerateSource(src string, opts Options) (*render.Code, error) {
	doc, err := template.Parse(src)
	if err != nil {
		return nil, err
	}
	return Generate(doc.Root(), opts)
}

type generator struct {
	name  string
	count int
}

func (g *generator) fail(n *template.Node, attr string, err error) error {
	typ := n.Type
	if typ == "" {
		typ = "fragment"
	}
	return &Error{Component: g.name, Node: typ, Attr: attr, Err: err}
}

func (g *generator) compile(n *template.Node) (*plan, error) {
	p := &plan{typ: n.Type, fragment: n.IsFragment(), index: -1}
	if p.typ == render.TypeSlot {
		p.slot = true
	}

	var forSrc, keySrc string
	for _, a := range n.Attrs {
		name, bound := strings.CutPrefix(a.Name, ":")
		switch {
		case bound && name == "for":
			forSrc = a.Value
			continue
		case name == "key":
			keySrc = a.Value
			continue
		case bound && name == "if":
			v, err := compileValue(a.Value, true)
			if err != nil {
				return nil, g.fail(n, a.Name, err)
			}
			p.cond = v.eval
			continue
		case bound && name == "show":
			v, err := compileValue(a.Value, true)
			if err != nil {
				return nil, g.fail(n, a.Name, err)
			}
			p.bindings = append(p.bindings, binding{
				prop:      "visible",
				value:     v.eval,
				transform: func(v any) any { return truthy(v) },
			})
			continue
		case name == "ref":
			p.ref = strings.Trim(a.Value, `'"`)
			continue
		case name == "slot":
			p.slot = true
			continue
		case strings.HasPrefix(a.Name, "@"):
			ev, err := compileEvent(strings.TrimPrefix(a.Name, "@"), a.Value)
			if err != nil {
				return nil, g.fail(n, a.Name, err)
			}
			p.events = append(p.events, ev)
			continue
		}

		v, err := compileValue(a.Value, bound)
		if err != nil {
			return nil, g.fail(n, a.Name, err)
		}
		if v.reactive() {
			p.bindings = append(p.bindings, binding{prop: name, value: v.fn})
		} else {
			p.static = append(p.static, staticProp{name: name, value: v.constant})
		}
	}

	for _, c := range n.Children {
		cp, err := g.compile(c)
		if err != nil {
			return nil, err
		}
		p.children = append(p.children, cp)
	}

	if forSrc != "" {
		lp, err := compileLoop(forSrc, keySrc)
		if err != nil {
			return nil, g.fail(n, ":for", err)
		}
		lp.body = p
		return &plan{typ: p.typ, index: -1, loop: lp}, nil
	}
	return p, nil
}

func compileEvent(name, raw string) (event, error) {
	raw = strings.TrimSpace(raw)
	if m := methodPattern.FindStringSubmatch(raw); m != nil {
		return event{name: name, method: m[1]}, nil
	}
	p, err := expr.Compile(raw)
	if err != nil {
		return event{}, err
	}
	return event{name: name, value: p.Eval}, nil
}

func compileLoop(src, keySrc string) (*loopPlan, error) {
	m := forPattern.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("expected \"item in $list\" or \"(item, index) in $list\", got %q", src)
	}
	lp := &loopPlan{item: m[1], index: m[2]}
	if m[3] != "" {
		lp.item = m[3]
	}
	if lp.index == "" {
		lp.index = "index"
	}
	source, err := compileValue(m[4], true)
	if err != nil {
		return nil, err
	}
	lp.source = source.eval
	if keySrc != "" {
		key, err := compileValue(keySrc, true)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		lp.key = key.eval
	}
	return lp, nil
}

// assign numbers the static plans in depth-first order; the order matches
// the order render appends children.
func (g *generator) assign(p *plan, dynamic bool) {
	if p.loop != nil {
		g.assign(p.loop.body, true)
		return
	}
	dynamic = dynamic || p.cond != nil
	if !p.fragment && !dynamic {
		p.index = g.count
		g.count++
	}
	for _, c := range p.children {
		g.assign(c, dynamic)
	}
}

// collectEffects turns the bindings of static plans into effect functions.
func (g *generator) collectEffects(p *plan, code *render.Code) {
	if p.loop != nil || p.cond != nil {
		return
	}
	if !p.fragment {
		for _, b := range p.bindings {
			idx := p.index
			code.Effects = append(code.Effects, func(inst render.Instance, children []*render.Child, _ render.Config, raw render.RawFunc, log *slog.Logger) {
				if idx >= len(children) {
					return
				}
				apply(b, children[idx], inst, raw, log)
			})
		}
	}
	for _, c := range p.children {
		g.collectEffects(c, code)
	}
}
