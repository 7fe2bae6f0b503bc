// Package precompile rewrites a source tree ahead of time: Go files get
// reactivity guards inserted into their computed functions and templates
// get a binary tree projection written next to them.
package precompile

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/go-drift/beam/pkg/guard"
	"github.com/go-drift/beam/pkg/template"
)

// BackupSuffix is appended to the name of a Go file backup.
const BackupSuffix = ".orig"

// TreeSuffix is appended to a template name for its binary projection.
const TreeSuffix = ".tree"

// Kind tells what happened to a file.
type Kind string

const (
	KindGuard Kind = "guard"
	KindTree  Kind = "tree"
)

// Options configures Run.
type Options struct {
	// Include and Exclude are path.Match patterns. A pattern containing a
	// slash is matched against the slash separated path relative to the
	// root, any other pattern against the base name.
	Include []string
	Exclude []string
	// Format normalizes Go files with go/format even when no guard was
	// needed.
	Format bool
	// DryRun reports changes without writing files.
	DryRun bool
	// Diff receives a unified diff of every changed Go file.
	Diff   io.Writer
	Logger *slog.Logger
}

// Result describes one processed file.
type Result struct {
	Path    string
	Kind    Kind
	Changed bool
	// Guarded lists the computed entries that received guards.
	Guarded []string
	Err     error
}

var skipDirs = map[string]bool{
	"vendor":   true,
	"testdata": true,
}

// Run processes every matching file under root. Errors in single files do
// not stop the walk; they are recorded on the results and joined into the
// returned error.
func Run(root string, opts Options) ([]Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var results []Result
	var errs []error
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, BackupSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matches(opts.Include, rel) || matches(opts.Exclude, rel) {
			return nil
		}

		var r Result
		switch filepath.Ext(p) {
		case ".go":
			r = processGo(p, opts)
		case ".tmpl":
			r = processTemplate(p, opts)
		default:
			return nil
		}
		if r.Err != nil {
			log.Error("precompile failed", "file", rel, "err", r.Err)
			errs = append(errs, r.Err)
		} else if r.Changed {
			log.Info("precompiled", "file", rel, "kind", r.Kind, "guarded", len(r.Guarded))
		} else {
			log.Debug("unchanged", "file", rel)
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

func matches(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		target := base
		if strings.Contains(p, "/") {
			target = rel
		}
		if ok, _ := path.Match(p, target); ok {
			return true
		}
	}
	return false
}

func processGo(p string, opts Options) Result {
	r := Result{Path: p, Kind: KindGuard}
	src, err := os.ReadFile(p)
	if err != nil {
		r.Err = err
		return r
	}

	out := src
	res, err := guard.Transform(p, src)
	if err != nil {
		r.Err = fmt.Errorf("%s: %w", p, err)
		return r
	}
	if res != nil {
		out = res.Source
		r.Guarded = res.Guarded
	} else if opts.Format {
		formatted, err := format.Source(src)
		if err != nil {
			r.Err = fmt.Errorf("%s: format: %w", p, err)
			return r
		}
		out = formatted
	}
	if bytes.Equal(out, src) {
		return r
	}
	r.Changed = true

	if opts.Diff != nil {
		if err := writeDiff(opts.Diff, p, src, out); err != nil {
			r.Err = err
			return r
		}
	}
	if opts.DryRun {
		return r
	}
	if err := os.WriteFile(p+BackupSuffix, src, 0o644); err != nil {
		r.Err = fmt.Errorf("%s: backup: %w", p, err)
		return r
	}
	if err := writePreservingMode(p, out); err != nil {
		r.Err = err
	}
	return r
}

func processTemplate(p string, opts Options) Result {
	r := Result{Path: p, Kind: KindTree}
	src, err := os.ReadFile(p)
	if err != nil {
		r.Err = err
		return r
	}
	doc, err := template.Parse(string(src))
	if err != nil {
		r.Err = fmt.Errorf("%s: %w", p, err)
		return r
	}
	data, err := template.Encode(doc)
	if err != nil {
		r.Err = fmt.Errorf("%s: %w", p, err)
		return r
	}

	treePath := p + TreeSuffix
	if prev, err := os.ReadFile(treePath); err == nil && bytes.Equal(prev, data) {
		return r
	}
	r.Changed = true
	if opts.DryRun {
		return r
	}
	if err := os.WriteFile(treePath, data, 0o644); err != nil {
		r.Err = fmt.Errorf("%s: %w", treePath, err)
	}
	return r
}

func writeDiff(w io.Writer, name string, before, after []byte) error {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: name + BackupSuffix,
		ToFile:   name,
		Context:  3,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, diff)
	return err
}

func writePreservingMode(p string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(p); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(p, data, mode)
}
