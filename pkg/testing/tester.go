package testing

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-drift/beam/pkg/component"
	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/render"
	"github.com/go-drift/beam/pkg/settings"
	"github.com/go-drift/beam/pkg/stage"
)

const (
	// DefaultTestWidth is the default stage width.
	DefaultTestWidth = 1920
	// DefaultTestHeight is the default stage height.
	DefaultTestHeight = 1080
	// FrameDuration is how far PumpAndSettle advances the clock per frame.
	FrameDuration = 16 * time.Millisecond
)

// ErrSettleTimeout is returned when PumpAndSettle exceeds its timeout.
var ErrSettleTimeout = errors.New("PumpAndSettle timed out: loop did not settle")

// Options configures a Tester. Zero values select the defaults.
type Options struct {
	Width, Height float64
	Settings      *settings.Resolved
	Plugins       []component.Plugin
	Components    render.Components
	IsolateHooks  bool
}

// Tester runs components on a headless stage with a fake clock. Log output
// is captured in memory at debug level.
type Tester struct {
	clock *FakeClock
	loop  *engine.Loop
	stage *stage.Stage
	app   *component.App
	logs  *bytes.Buffer
}

// NewTester creates a tester.
func NewTester(opts Options) *Tester {
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = DefaultTestWidth
	}
	if h == 0 {
		h = DefaultTestHeight
	}
	clk := NewFakeClock()
	loop := engine.New(clk)
	st := stage.New(w, h)
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return &Tester{
		clock: clk,
		loop:  loop,
		stage: st,
		logs:  logs,
		app: component.NewApp(component.Options{
			Stage:        st,
			Loop:         loop,
			Settings:     opts.Settings,
			Logger:       log,
			Plugins:      opts.Plugins,
			Components:   opts.Components,
			IsolateHooks: opts.IsolateHooks,
		}),
	}
}

// NewTesterWithT creates a tester whose mounted root is destroyed when the
// test ends.
func NewTesterWithT(t testing.TB, opts ...Options) *Tester {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	tester := NewTester(o)
	t.Cleanup(tester.Cleanup)
	return tester
}

// Cleanup destroys the mounted root, if any.
func (t *Tester) Cleanup() {
	if root := t.app.Root(); root != nil {
		root.Destroy()
	}
}

// Clock returns the fake clock.
func (t *Tester) Clock() *FakeClock { return t.clock }

// Loop returns the engine loop.
func (t *Tester) Loop() *engine.Loop { return t.loop }

// Stage returns the headless stage.
func (t *Tester) Stage() *stage.Stage { return t.stage }

// App returns the application context.
func (t *Tester) App() *component.App { return t.app }

// Logs returns everything logged so far.
func (t *Tester) Logs() string { return t.logs.String() }

// Mount creates the root instance.
func (t *Tester) Mount(f *component.Factory, props map[string]any) (*component.Instance, error) {
	return t.app.Mount(f, props)
}

// Pump runs a single frame without moving the clock.
func (t *Tester) Pump() engine.FrameInfo {
	return t.loop.Step()
}

// PumpFor advances the clock by d and runs one frame.
func (t *Tester) PumpFor(d time.Duration) engine.FrameInfo {
	t.clock.Advance(d)
	return t.loop.Step()
}

// PumpAndSettle runs frames, advancing the clock by FrameDuration, until no
// work is dispatched and no timer is pending, or timeout elapses. Intervals
// keep a loop busy; stop them before settling.
func (t *Tester) PumpAndSettle(timeout time.Duration) error {
	var elapsed time.Duration
	for elapsed < timeout {
		t.loop.Step()
		if dispatched, timers := t.loop.Pending(); dispatched == 0 && timers == 0 {
			return nil
		}
		t.clock.Advance(FrameDuration)
		elapsed += FrameDuration
	}
	return ErrSettleTimeout
}

// Find evaluates a finder against the stage.
func (t *Tester) Find(finder Finder) FinderResult {
	return FinderResult{nodes: finder.Evaluate(t.stage.RootNode()), finder: finder}
}
