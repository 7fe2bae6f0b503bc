package component

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/errors"
	"github.com/go-drift/beam/pkg/focus"
	"github.com/go-drift/beam/pkg/reactivity"
	"github.com/go-drift/beam/pkg/render"
	"github.com/go-drift/beam/pkg/settings"
	"github.com/go-drift/beam/pkg/stage"
)

// Plugin is an application-wide service exposed on every instance as
// $<Name> in templates and through Instance.Plugin.
type Plugin struct {
	Name    string
	New     func(options map[string]any) any
	Options map[string]any
}

// PluginHost is implemented by plugin values that use other plugins. It
// receives every other plugin of the App, keyed by name.
type PluginHost interface {
	SetPlugins(plugins map[string]any)
}

// builtins are instance members a plugin name must not shadow.
var builtins = []string{
	"componentId", "hasFocus", "parent", "root",
	"select", "focus", "emit", "listen", "trigger", "destroy",
	"setTimeout", "clearTimeout", "setInterval", "clearInterval",
}

// Options configures an App.
type Options struct {
	// Stage receives the nodes. Defaults to a headless stage sized from
	// Settings.
	Stage render.Stage
	// Loop schedules deferred work and emits renderer events. Defaults to a
	// loop on system time.
	Loop *engine.Loop
	// Settings defaults to the resolved zero settings.
	Settings *settings.Resolved
	Logger   *slog.Logger
	Plugins  []Plugin
	// Components are available to every template.
	Components render.Components
	// IsolateHooks recovers panics raised by hooks and watchers and reports
	// them to the error handler instead of propagating them.
	IsolateHooks bool
}

// App is the context shared by all instances of one application: the
// stage, the event loop, the reactivity tracker, plugins and focus.
type App struct {
	stage        render.Stage
	loop         *engine.Loop
	log          *slog.Logger
	settings     *settings.Resolved
	tracker      *reactivity.Tracker
	focus        *focus.Manager
	components   render.Components
	isolateHooks bool

	pluginDefs []Plugin
	plugins    map[string]any
	launched   bool

	bus    engine.Emitter
	serial uint64
	root   *Instance
}

// NewApp returns an App. Plugins are resolved on the first instantiation.
func NewApp(opts Options) *App {
	s := opts.Settings
	if s == nil {
		// resolving zero settings cannot fail
		s, _ = (*settings.Settings)(nil).Resolve()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	st := opts.Stage
	if st == nil {
		st = stage.New(s.Width, s.Height)
	}
	loop := opts.Loop
	if loop == nil {
		loop = engine.New(nil)
	}
	tracker := reactivity.NewTracker()
	tracker.SetMaxDepth(s.MaxEffectDepth)

	return &App{
		stage:        st,
		loop:         loop,
		log:          log,
		settings:     s,
		tracker:      tracker,
		focus:        focus.NewManager(log),
		components:   opts.Components,
		isolateHooks: opts.IsolateHooks,
		pluginDefs:   slices.Clone(opts.Plugins),
		plugins:      map[string]any{},
	}
}

// Stage returns the stage.
func (a *App) Stage() render.Stage { return a.stage }

// Loop returns the event loop.
func (a *App) Loop() *engine.Loop { return a.loop }

// Logger returns the logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Settings returns the resolved settings.
func (a *App) Settings() *settings.Resolved { return a.settings }

// Tracker returns the reactivity tracker shared by all instances.
func (a *App) Tracker() *reactivity.Tracker { return a.tracker }

// Focus returns the focus manager.
func (a *App) Focus() *focus.Manager { return a.focus }

// Launched reports whether plugins have been resolved.
func (a *App) Launched() bool { return a.launched }

// Root returns the instance created by Mount, if any.
func (a *App) Root() *Instance { return a.root }

// Plugin returns a resolved plugin.
func (a *App) Plugin(name string) (any, bool) {
	p, ok := a.plugins[name]
	return p, ok
}

// Emit sends an application-wide event.
func (a *App) Emit(event string, data any) {
	a.bus.Emit(event, data)
}

// On subscribes to application-wide events.
func (a *App) On(event string, fn func(data any)) (off func()) {
	return a.bus.On(event, fn)
}

// Mount creates the root instance in a new holder under the stage root.
func (a *App) Mount(f *Factory, props map[string]any) (*Instance, error) {
	holder := a.stage.CreateNode(render.TypeElement, a.stage.Root())
	c, err := f.def.instantiate(a, nil, holder, props)
	if err != nil {
		holder.Remove()
		return nil, err
	}
	if a.root == nil {
		a.root = c
	}
	return c, nil
}

// launch resolves plugins once. A plugin whose name collides with an
// instance member or an earlier plugin is reported and overwrites it.
func (a *App) launch() {
	if a.launched {
		return
	}
	a.launched = true

	for _, p := range a.pluginDefs {
		_, dup := a.plugins[p.Name]
		if dup || slices.Contains(builtins, p.Name) {
			errors.Report(&errors.BeamError{
				Op:   "component.launch",
				Kind: errors.KindPlugin,
				Err: fmt.Errorf("%q ($%s) already exists as a property or plugin on the base component; built-in functionality may be overwritten",
					p.Name, p.Name),
			})
		}
		if p.New == nil {
			errors.Report(&errors.BeamError{
				Op:   "component.launch",
				Kind: errors.KindPlugin,
				Err:  fmt.Errorf("plugin %q has no constructor", p.Name),
			})
			continue
		}
		a.plugins[p.Name] = p.New(p.Options)
	}

	// expose the other plugins inside each plugin
	for name, p := range a.plugins {
		host, ok := p.(PluginHost)
		if !ok {
			continue
		}
		others := maps.Clone(a.plugins)
		delete(others, name)
		host.SetPlugins(others)
	}
}

func (a *App) nextSerial() uint64 {
	a.serial++
	return a.serial
}
