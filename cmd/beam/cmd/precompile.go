package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-drift/beam/cmd/beam/internal/config"
	"github.com/go-drift/beam/cmd/beam/internal/precompile"
)

func init() {
	RegisterCommand(&Command{
		Name:  "precompile",
		Short: "Guard computed values and write template trees",
		Long: `Prepare component sources ahead of time.

Go files: every function literal in a Computed map is rewritten so that it
reads all of its values up front, keeping it subscribed to each of them even
when it returns early. A changed file keeps its previous content in
<file>.orig.

Templates (.tmpl): the parsed tree is written to <file>.tree, which
components can load without parsing.

Files are selected with precompile.include and precompile.exclude in
beam.yaml (default: *.go and *.tmpl, without *_test.go). vendor/,
testdata/, hidden directories and *.orig files are always skipped.
Go files without computed values are left as they are unless
precompile.format is true or --format is given.

Flags:
  --diff      Print a unified diff of every changed Go file
  --dry-run   Report changes without writing files
  --format    Also gofmt Go files that need no guard`,
		Usage: "beam precompile [dir] [--diff] [--dry-run] [--format]",
		Run:   runPrecompile,
	})
}

func runPrecompile(args []string) error {
	var dir string
	var diff, dryRun, format bool
	for _, arg := range args {
		switch arg {
		case "--diff":
			diff = true
		case "--dry-run":
			dryRun = true
		case "--format":
			format = true
		default:
			if dir != "" {
				return fmt.Errorf("unexpected argument %q\n\nUsage: beam precompile [dir] [--diff] [--dry-run] [--format]", arg)
			}
			dir = arg
		}
	}

	root, err := config.FindProjectRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(root)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Root
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return err
	}

	opts := precompile.Options{
		Include: cfg.Include,
		Exclude: cfg.Exclude,
		Format:  cfg.Format || format,
		DryRun:  dryRun,
		Logger:  logger.With("module", cfg.ModulePath),
	}
	if diff {
		opts.Diff = stdout
	}
	results, err := precompile.Run(dir, opts)
	printSummary(stdout, results, dryRun)
	return err
}

func printSummary(w io.Writer, results []precompile.Result, dryRun bool) {
	changed, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Changed:
			changed++
		}
	}
	verb := "updated"
	if dryRun {
		verb = "would update"
	}
	fmt.Fprintf(w, "%d files checked, %s %d, %d failed\n", len(results), verb, changed, failed)
}
