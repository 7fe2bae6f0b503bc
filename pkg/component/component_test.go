package component_test

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-drift/beam/pkg/codegen"
	"github.com/go-drift/beam/pkg/component"
	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/errors"
	"github.com/go-drift/beam/pkg/lifecycle"
	"github.com/go-drift/beam/pkg/render"
	"github.com/go-drift/beam/pkg/stage"
	"github.com/go-drift/beam/pkg/template"
	beamtest "github.com/go-drift/beam/pkg/testing"
)

type captureHandler struct {
	errs   []*errors.BeamError
	panics []*errors.PanicError
}

func (h *captureHandler) HandleError(err *errors.BeamError)  { h.errs = append(h.errs, err) }
func (h *captureHandler) HandlePanic(err *errors.PanicError) { h.panics = append(h.panics, err) }

func capture(t *testing.T) *captureHandler {
	t.Helper()
	h := &captureHandler{}
	errors.SetHandler(h)
	t.Cleanup(func() { errors.SetHandler(nil) })
	return h
}

func prop(n render.Node, name string) any {
	v, _ := n.Get(name)
	return v
}

func newCounter() *component.Factory {
	return component.Component("Counter", component.Config{
		Props: []string{"start"},
		State: func(c *component.Instance) map[string]any {
			start, _ := c.Get("start").(int)
			return map[string]any{"count": start}
		},
		Computed: component.Computed{
			"label": func(c *component.Instance) any {
				return fmt.Sprint("count: ", c.Get("count"))
			},
		},
		Methods: component.Methods{
			"increment": func(c *component.Instance, args ...any) any {
				n := c.Get("count").(int) + 1
				c.Set("count", n)
				return n
			},
		},
		Template: `<Element w="100"><Text :content="$label" /></Element>`,
	})
}

func TestInstanceIDs(t *testing.T) {
	counter := newCounter()
	tester := beamtest.NewTesterWithT(t)

	a, err := tester.Mount(counter, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	b, err := tester.Mount(counter, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if a.ID() != "Counter1" || b.ID() != "Counter2" {
		t.Errorf("Expected Counter1 and Counter2, got %s and %s", a.ID(), b.ID())
	}
	if a.Serial() == b.Serial() {
		t.Error("Expected distinct serials")
	}
	if a.Root() != a || a.Parent() != nil {
		t.Error("A mounted instance should be its own root")
	}
	b.Destroy()
}

func TestStateSeesPropsAndRenders(t *testing.T) {
	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(newCounter(), map[string]any{"start": 3, "x": 10.0})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	text := tester.Find(beamtest.ByType("Text")).First()
	if got := prop(text, "content"); got != "count: 3" {
		t.Fatalf("Expected initial content from the start prop, got %v", got)
	}
	if got := prop(c.Holder(), "x"); got != 10.0 {
		t.Errorf("Expected undeclared prop on the holder, got %v", got)
	}
	if c.Props().Has("x") {
		t.Error("Undeclared prop should not be reactive")
	}

	if _, err := c.Call("increment"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := prop(text, "content"); got != "count: 4" {
		t.Errorf("Expected content to follow state, got %v", got)
	}

	if _, err := c.Call("missing"); err == nil || !strings.Contains(err.Error(), `unknown method "missing"`) {
		t.Errorf("Expected unknown method error, got %v", err)
	}
}

func TestSetPropFromInsideIsIgnored(t *testing.T) {
	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(newCounter(), map[string]any{"start": 1})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	c.Set("start", 5)
	if got := c.Get("start"); got != 1 {
		t.Errorf("Expected prop to stay 1, got %v", got)
	}
	if !strings.Contains(tester.Logs(), "cannot set prop from inside the component") {
		t.Errorf("Expected warning, got %q", tester.Logs())
	}

	c.SetProp("start", 7)
	if got := c.Get("start"); got != 7 {
		t.Errorf("Expected parent prop update, got %v", got)
	}
}

func TestLifecycleHooks(t *testing.T) {
	var events []string
	record := func(name string) func(*component.Instance) {
		return func(*component.Instance) { events = append(events, name) }
	}
	box := component.Component("Box", component.Config{
		Hooks: component.Hooks{
			Init:    record("init"),
			Ready:   record("ready"),
			Attach:  record("attach"),
			Detach:  record("detach"),
			Enter:   record("enter"),
			Exit:    record("exit"),
			Destroy: record("destroy"),
		},
		Template: `<Element w="10" h="10" />`,
	})

	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(box, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if diff := cmp.Diff([]string{"init"}, events); diff != "" {
		t.Fatalf("Ready should wait for the next tick (-want +got):\n%s", diff)
	}
	tester.Pump()

	wrapper := c.Wrapper().Node.(*stage.Node)
	// the first layout of a node outside the margin is not a detach
	wrapper.SetRenderState(render.StateOutOfBounds)
	wrapper.SetRenderState(render.StateInBounds)
	wrapper.SetRenderState(render.StateInViewport)
	wrapper.SetRenderState(render.StateOutOfBounds)
	c.Destroy()

	want := []string{"init", "ready", "attach", "enter", "exit", "detach", "destroy"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("Hook order mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Lifecycle().State(); ok {
		t.Error("Expected no state after destroy")
	}
	if c.Lifecycle().Current() != lifecycle.Destroy {
		t.Errorf("Expected last state destroy, got %s", c.Lifecycle().Current())
	}
	if !wrapper.Removed() {
		t.Error("Expected rendered nodes removed")
	}

	c.Destroy()
	if len(events) != len(want) {
		t.Error("Destroy should be idempotent")
	}
}

func TestFrameTickAndIdle(t *testing.T) {
	var frames []int
	idle := 0
	ticker := component.Component("Ticker", component.Config{
		Hooks: component.Hooks{
			FrameTick: func(c *component.Instance, f engine.FrameInfo) { frames = append(frames, f.Frame) },
			Idle:      func(*component.Instance) { idle++ },
		},
	})

	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(ticker, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	tester.Pump() // runs the ready transition
	tester.Pump()
	if diff := cmp.Diff([]int{1, 2}, frames); diff != "" {
		t.Errorf("Frame mismatch (-want +got):\n%s", diff)
	}
	if idle != 1 {
		t.Errorf("Expected one idle frame, got %d", idle)
	}

	c.Destroy()
	tester.Pump()
	if len(frames) != 2 {
		t.Error("Destroyed instance should stop receiving frames")
	}
}

func TestDestroyedInFrameTick(t *testing.T) {
	var target *component.Instance
	ticks := 0
	killer := component.Component("Killer", component.Config{
		Hooks: component.Hooks{
			FrameTick: func(*component.Instance, engine.FrameInfo) {
				if target != nil {
					target.Destroy()
				}
			},
		},
	})
	victim := component.Component("Target", component.Config{
		Hooks: component.Hooks{
			FrameTick: func(*component.Instance, engine.FrameInfo) { ticks++ },
		},
	})

	tester := beamtest.NewTesterWithT(t)
	if _, err := tester.Mount(killer, nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	var err error
	if target, err = tester.Mount(victim, nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	tester.Pump()

	if !target.Destroyed() {
		t.Fatal("Expected the killer to destroy the target")
	}
	if ticks != 0 {
		t.Errorf("Expected no frame tick after destroy in the same step, got %d", ticks)
	}
}

func TestWatchers(t *testing.T) {
	type call struct{ Value, Old any }
	var counts, names []call
	profile := component.Component("Profile", component.Config{
		State: func(*component.Instance) map[string]any {
			return map[string]any{"count": 0, "user": map[string]any{"name": "ada"}}
		},
		Watch: component.Watchers{
			"count":     func(c *component.Instance, v, old any) { counts = append(counts, call{v, old}) },
			"user.name": func(c *component.Instance, v, old any) { names = append(names, call{v, old}) },
		},
	})

	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(profile, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if len(counts)+len(names) != 0 {
		t.Fatal("Watchers should not fire on registration")
	}

	c.Set("count", 1)
	c.Set("count", 1)
	if diff := cmp.Diff([]call{{1, 0}}, counts); diff != "" {
		t.Errorf("Count watcher mismatch (-want +got):\n%s", diff)
	}

	if !c.Trigger("count") {
		t.Fatal("Expected a watcher for count")
	}
	if diff := cmp.Diff([]call{{1, 0}, {1, 1}}, counts); diff != "" {
		t.Errorf("Trigger should force a call (-want +got):\n%s", diff)
	}
	if c.Trigger("missing") {
		t.Error("Trigger of an unknown path should report false")
	}

	c.Set("user", map[string]any{"name": "grace"})
	if diff := cmp.Diff([]call{{"grace", "ada"}}, names); diff != "" {
		t.Errorf("Path watcher mismatch (-want +got):\n%s", diff)
	}

	c.Destroy()
	c.Set("count", 2)
	if len(counts) != 2 {
		t.Error("Watchers should stop on destroy")
	}
}

func TestConditionalRegionsDoNotAccumulate(t *testing.T) {
	toggle := component.Component("Toggle", component.Config{
		State: func(*component.Instance) map[string]any {
			return map[string]any{"open": false, "pos": 1}
		},
		Template: `<Element><Element :if="$open" :x="$pos" /></Element>`,
	})
	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(toggle, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	_, disposers := c.Tracked()

	for i := 0; i < 1000; i++ {
		c.Set("open", true)
		c.Set("open", false)
	}
	effects, after := c.Tracked()
	if after != disposers {
		t.Errorf("Expected %d cleanups after toggling, got %d", disposers, after)
	}
	if effects > 32 {
		t.Errorf("Expected stopped effects to be dropped, still tracking %d", effects)
	}

	c.Set("open", true)
	c.Set("pos", 9)
	kids := c.Wrapper().Node.(*stage.Node).Children()
	if len(kids) != 1 {
		t.Fatalf("Expected the gated element, got %d children", len(kids))
	}
	if x, _ := kids[0].Get("x"); x != 9 {
		t.Errorf("Expected x=9, got %v", x)
	}
}

func TestTimersClearedOnDestroy(t *testing.T) {
	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(newCounter(), nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	fired := 0
	c.SetTimeout(func() { fired++ }, 50*time.Millisecond)
	c.SetInterval(func() { fired++ }, 20*time.Millisecond)
	cleared := c.SetTimeout(func() { fired += 100 }, 10*time.Millisecond)
	c.ClearTimeout(cleared)
	if c.Timers() != 2 {
		t.Fatalf("Expected 2 pending timers, got %d", c.Timers())
	}

	tester.PumpFor(20 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("Expected the interval to fire once, got %d", fired)
	}

	c.Destroy()
	if _, timers := tester.Loop().Pending(); timers != 0 {
		t.Errorf("Expected no timers on the loop, got %d", timers)
	}
	tester.PumpFor(time.Second)
	if fired != 1 {
		t.Errorf("Timers fired after destroy: %d", fired)
	}
	if id := c.SetTimeout(func() {}, time.Millisecond); id != 0 {
		t.Errorf("Expected zero id after destroy, got %d", id)
	}
}

func TestDestroyOrder(t *testing.T) {
	var order []string
	leaf := component.Component("Leaf", component.Config{
		Hooks:    component.Hooks{Destroy: func(c *component.Instance) { order = append(order, c.ID()+".destroy") }},
		Template: `<Element />`,
	})
	tree := component.Component("Tree", component.Config{
		Hooks: component.Hooks{
			Init: func(c *component.Instance) {
				c.OnDestroy(func() { order = append(order, "first") })
				c.OnDestroy(func() { order = append(order, "second") })
			},
			Destroy: func(c *component.Instance) { order = append(order, c.ID()+".destroy") },
		},
		Components: render.ComponentMap{"Leaf": leaf},
		Template:   `<Element><Leaf /><Leaf /></Element>`,
	})

	tester := beamtest.NewTesterWithT(t)
	c, err := tester.Mount(tree, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	c.Destroy()

	want := []string{"second", "first", "Leaf2.destroy", "Leaf1.destroy", "Tree1.destroy"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("Destroy order mismatch (-want +got):\n%s", diff)
	}
	if !c.Holder().(*stage.Node).Removed() {
		t.Error("Expected holder removed")
	}

	ran := false
	c.OnDestroy(func() { ran = true })
	if !ran {
		t.Error("OnDestroy after destroy should run immediately")
	}
}

func TestChildComponents(t *testing.T) {
	card := component.Component("Card", component.Config{
		Props: []string{"title"},
		Methods: component.Methods{
			"pick": func(c *component.Instance, args ...any) any {
				c.Emit("picked", c.Get("title"))
				return nil
			},
		},
		Template: `
<Element :focused="$hasFocus">
  <Text :content="$title" />
  <Element slot="true" w="1" />
</Element>`,
	})

	var picked []any
	page := component.Component("Page", component.Config{
		State: func(*component.Instance) map[string]any { return map[string]any{"title": "Dune"} },
		Methods: component.Methods{
			"onPicked": func(c *component.Instance, args ...any) any {
				picked = append(picked, args...)
				return nil
			},
		},
		Components: render.ComponentMap{"Card": card},
		Template: `
<Element>
  <Card :title="$title" x="5" @picked="$onPicked" :ref="card">
    <Text content="inside" />
  </Card>
</Element>`,
	})

	tester := beamtest.NewTesterWithT(t)
	root, err := tester.Mount(page, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	ref := root.Select("card")
	if ref == nil {
		t.Fatal("Expected :ref to record the card")
	}
	child, ok := ref.Component.(*component.Instance)
	if !ok {
		t.Fatalf("Expected a component instance, got %T", ref.Component)
	}
	if child.ID() != "Card1" || child.Parent() != root || child.Root() != root {
		t.Errorf("Unexpected child identity: id=%s", child.ID())
	}
	if got := prop(child.Holder(), "x"); got != 5.0 {
		t.Errorf("Expected x on the card holder, got %v", got)
	}

	inside := tester.Find(beamtest.ByText("inside")).First()
	if inside.Parent() != child.SlotNode() {
		t.Error("Content between component tags should go to the slot")
	}

	root.Set("title", "Arrival")
	if !tester.Find(beamtest.Descendant(beamtest.ByPredicate(func(n *stage.Node) bool {
		return render.Node(n) == child.Holder()
	}), beamtest.ByText("Arrival"))).Exists() {
		t.Errorf("Expected prop update to reach the card, stage:\n%s", tester.Stage().RootNode().Dump())
	}

	var bus []any
	root.On("picked", func(data any) { bus = append(bus, data) })
	if err := child.Invoke("pick"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff([]any{"Arrival"}, picked); diff != "" {
		t.Errorf("Parent handler mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"Arrival"}, bus); diff != "" {
		t.Errorf("App listener mismatch (-want +got):\n%s", diff)
	}
}

func TestFocusAndHover(t *testing.T) {
	var hovers []string
	item := component.Component("Item", component.Config{
		Hooks: component.Hooks{
			Hover:   func(c *component.Instance) { hovers = append(hovers, c.ID()+".hover") },
			Unhover: func(c *component.Instance) { hovers = append(hovers, c.ID()+".unhover") },
		},
		Template: `<Element :focused="$hasFocus" />`,
	})
	list := component.Component("List", component.Config{
		Hooks: component.Hooks{
			Hover: func(c *component.Instance) { hovers = append(hovers, c.ID()+".hover") },
		},
		Components: render.ComponentMap{"Item": item},
		Template:   `<Element><Item :ref="a" /><Item :ref="b" /></Element>`,
	})

	tester := beamtest.NewTesterWithT(t)
	root, err := tester.Mount(list, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	a := root.Select("a").Component.(*component.Instance)
	b := root.Select("b").Component.(*component.Instance)

	a.Focus()
	if !a.HasFocus() || b.HasFocus() {
		t.Fatal("Expected a to hold focus")
	}
	if got := prop(a.Wrapper().Node, "focused"); got != true {
		t.Errorf("Expected $hasFocus binding to follow focus, got %v", got)
	}

	b.Focus()
	if a.HasFocus() || !b.HasFocus() {
		t.Error("Expected focus to move to b")
	}
	if got := prop(a.Wrapper().Node, "focused"); got != false {
		t.Errorf("Expected a to lose focus, got %v", got)
	}

	want := []string{"List1.hover", "Item1.hover", "Item1.unhover", "Item2.hover"}
	if diff := cmp.Diff(want, hovers); diff != "" {
		t.Errorf("Hover order mismatch (-want +got):\n%s", diff)
	}
	if tester.App().Focus().Primary() != b {
		t.Error("Expected b as primary focus")
	}

	b.Destroy()
	if tester.App().Focus().Primary() != nil {
		t.Error("Destroying the focused instance should clear focus")
	}
}

type store struct {
	options map[string]any
	others  map[string]any
}

func (s *store) SetPlugins(p map[string]any) { s.others = p }

func TestPlugins(t *testing.T) {
	h := capture(t)
	created := 0
	newStore := func(opts map[string]any) any {
		created++
		return &store{options: opts}
	}
	tester := beamtest.NewTesterWithT(t, beamtest.Options{
		Plugins: []component.Plugin{
			{Name: "store", New: newStore, Options: map[string]any{"ttl": 5}},
			{Name: "router", New: newStore},
			{Name: "select", New: newStore},
			{Name: "broken"},
		},
	})

	a, err := tester.Mount(newCounter(), nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if _, err := tester.Mount(newCounter(), nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if created != 3 {
		t.Errorf("Expected plugins created once, got %d constructions", created)
	}
	if !tester.App().Launched() {
		t.Error("Expected the app to be launched")
	}

	s, ok := a.Plugin("store").(*store)
	if !ok || s.options["ttl"] != 5 {
		t.Fatalf("Expected store plugin with options, got %#v", a.Plugin("store"))
	}
	if a.Get("store") != s {
		t.Error("Expected $store to resolve to the plugin")
	}
	if _, self := s.others["store"]; self || s.others["router"] == nil {
		t.Errorf("Expected the other plugins without self, got %v", s.others)
	}

	if len(h.errs) != 2 {
		t.Fatalf("Expected collision and constructor reports, got %v", h.errs)
	}
	if h.errs[0].Kind != errors.KindPlugin || !strings.Contains(h.errs[0].Error(), `"select" ($select) already exists`) {
		t.Errorf("Unexpected collision report: %v", h.errs[0])
	}
}

func TestTemplateErrors(t *testing.T) {
	broken := component.Component("Broken", component.Config{Template: `<A/><B/>`})
	tester := beamtest.NewTesterWithT(t)

	_, err := tester.Mount(broken, nil)
	var be *errors.BeamError
	if !stderrors.As(err, &be) || be.Kind != errors.KindTemplate || be.Component != "Broken" {
		t.Fatalf("Expected template BeamError, got %v", err)
	}
	var te *template.Error
	if !stderrors.As(err, &te) || te.Name != template.StructureErrorName {
		t.Errorf("Expected structure error, got %v", err)
	}
	if !stderrors.Is(err, template.ErrMultipleTopLevelTags) {
		t.Errorf("Expected MultipleTopLevelTags, got %v", err)
	}
	if n := len(tester.Stage().RootNode().Children()); n != 0 {
		t.Errorf("Expected the holder removed after a failed mount, got %d nodes", n)
	}
}

func TestUnknownTagIsReported(t *testing.T) {
	h := capture(t)
	shell := component.Component("Shell", component.Config{Template: `<Element><Missing /></Element>`})
	tester := beamtest.NewTesterWithT(t)
	if _, err := tester.Mount(shell, nil); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if len(h.errs) != 1 || h.errs[0].Kind != errors.KindRender {
		t.Errorf("Expected a render report, got %v", h.errs)
	}
}

func TestPrecompiledCode(t *testing.T) {
	generated, err := codegen.GenerateSource(`<Element><Text :content="$componentId" /></Element>`, codegen.Options{Name: "Tag"})
	if err != nil {
		t.Fatalf("GenerateSource: %v", err)
	}
	var configs []*component.Config
	handmade := &render.Code{
		Render: func(st render.Stage, parent render.Node, inst render.Instance, config render.Config, _ render.Components, _ render.Effects, _ render.RawFunc, _ *slog.Logger) ([]*render.Child, error) {
			cfg, _ := config.(*component.Config)
			configs = append(configs, cfg)
			n := st.CreateNode(render.TypeText, parent)
			n.Set("content", inst.ID())
			return []*render.Child{{Type: render.TypeText, Node: n}}, nil
		},
		Effects: []render.EffectFunc{
			func(_ render.Instance, children []*render.Child, config render.Config, _ render.RawFunc, _ *slog.Logger) {
				cfg, _ := config.(*component.Config)
				configs = append(configs, cfg)
				if cfg != nil && len(cfg.Props) > 0 {
					children[0].Node.Set("label", cfg.Props[0])
				}
			},
		},
	}

	tester := beamtest.NewTesterWithT(t)
	for _, code := range []*render.Code{generated, handmade} {
		tag := component.Component("Tag", component.Config{Props: []string{"size"}, Code: code})
		if _, err := tester.Mount(tag, nil); err != nil {
			t.Fatalf("Mount: %v", err)
		}
	}
	if len(configs) != 2 || configs[0] == nil || configs[0] != configs[1] || configs[0].Code != handmade {
		t.Fatalf("Expected render and effect to receive the Tag config, got %v", configs)
	}
	if got := tester.Find(beamtest.ByText("Tag1")).Count(); got != 2 {
		t.Errorf("Expected both renditions to show Tag1, got %d", got)
	}
	if got, _ := tester.Find(beamtest.ByText("Tag1")).At(1).Get("label"); got != "size" {
		t.Errorf("Expected the effect to label from the config, got %v", got)
	}
}

func TestIsolateHooks(t *testing.T) {
	h := capture(t)
	faulty := component.Component("Faulty", component.Config{
		Hooks: component.Hooks{Ready: func(*component.Instance) { panic("boom") }},
	})
	tester := beamtest.NewTesterWithT(t, beamtest.Options{IsolateHooks: true})
	c, err := tester.Mount(faulty, nil)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	tester.Pump()

	if len(h.panics) != 1 || h.panics[0].Op != "component.Faulty.ready" || h.panics[0].Component != "Faulty" {
		t.Fatalf("Expected reported panic, got %v", h.panics)
	}
	if !c.Lifecycle().Is(lifecycle.Ready) {
		t.Errorf("Expected ready despite the panic, got %s", c.Lifecycle().Current())
	}
}
