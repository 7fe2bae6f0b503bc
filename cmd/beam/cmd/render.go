package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/beam/cmd/beam/internal/config"
	"github.com/go-drift/beam/pkg/component"
	"github.com/go-drift/beam/pkg/engine"
	"github.com/go-drift/beam/pkg/inspect"
	"github.com/go-drift/beam/pkg/settings"
	"github.com/go-drift/beam/pkg/stage"
)

// traceFrames is how many frames render keeps when tracing.
const traceFrames = 240

func init() {
	RegisterCommand(&Command{
		Name:  "render",
		Short: "Render a template on a headless stage",
		Long: `Mount a template as a component on an in-memory stage and print the
resulting node tree.

Flags:
  --state FILE      YAML map used as the component state
  --settings FILE   Application settings (default: "settings" in beam.yaml)
  --trace           Print the frame trace as JSON after the tree
  --serve ADDR      Keep running at 60 frames per second and serve /tree,
                    /frames and /health on ADDR until interrupted

The stage is sized from the settings (w, h). One frame is run after
mounting, so the ready transition and zero-delay timers have happened when
the tree is printed.`,
		Usage: "beam render <file> [--state FILE] [--settings FILE] [--trace] [--serve ADDR]",
		Run:   runRender,
	})
}

func runRender(args []string) error {
	var file, statePath, settingsPath, serveAddr string
	var trace bool
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "--trace":
			trace = true
		case "--state", "--settings", "--serve":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", arg)
			}
			switch arg {
			case "--state":
				statePath = args[i+1]
			case "--settings":
				settingsPath = args[i+1]
			default:
				serveAddr = args[i+1]
			}
			i++
		default:
			if file != "" {
				return fmt.Errorf("unexpected argument %q\n\nUsage: beam render <file> [--state FILE] [--settings FILE] [--trace] [--serve ADDR]", arg)
			}
			file = arg
		}
	}
	if file == "" {
		return fmt.Errorf("a template file is required\n\nUsage: beam render <file> [--state FILE] [--settings FILE] [--trace] [--serve ADDR]")
	}

	if settingsPath == "" {
		if root, err := config.FindProjectRoot(); err == nil {
			if cfg, err := config.Resolve(root); err == nil {
				settingsPath = cfg.SettingsPath
			}
		}
	}
	s, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}
	resolved, err := s.Resolve()
	if err != nil {
		return err
	}
	logLevel.Set(min(logLevel.Level(), resolved.LogLevel))

	state, err := loadState(statePath)
	if err != nil {
		return err
	}
	doc, err := loadDocument(file)
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	f := component.Component(name, component.Config{
		State: func(*component.Instance) map[string]any { return state },
		Tree:  doc.Root(),
	})

	st := stage.New(resolved.Width, resolved.Height)
	loop := engine.New(nil)
	if trace || serveAddr != "" {
		loop.TraceFrames(traceFrames, 0)
	}
	app := component.NewApp(component.Options{
		Stage:    st,
		Loop:     loop,
		Settings: resolved,
		Logger:   logger,
	})
	c, err := app.Mount(f, nil)
	if err != nil {
		return err
	}
	defer c.Destroy()
	loop.Step()

	if serveAddr != "" {
		return serve(serveAddr, st, loop)
	}

	fmt.Fprint(stdout, st.RootNode().Dump())
	if trace {
		out, err := json.MarshalIndent(loop.Frames(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(out))
	}
	return nil
}

func serve(addr string, st *stage.Stage, loop *engine.Loop) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := inspect.New(inspect.Options{Stage: st, Frames: loop, Logger: logger})
	bound, err := srv.Start(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Inspecting on http://%s\n", bound)

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Stop(shutdown)
		case <-ticker.C:
			loop.Step()
		}
	}
}

func loadState(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state map[string]any
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return state, nil
}
