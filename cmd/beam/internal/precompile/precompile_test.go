package precompile

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-drift/beam/pkg/guard"
	"github.com/go-drift/beam/pkg/template"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const posterSource = `package ui

import "github.com/go-drift/beam/pkg/component"

var Poster = component.Component("Poster", component.Config{
	Computed: component.Computed{
		"label": func(c *component.Instance) any {
			if !c.Get("ready").(bool) {
				return ""
			}
			return c.Get("title")
		},
	},
})
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func defaults() Options {
	return Options{
		Include: []string{"*.go", "*.tmpl"},
		Exclude: []string{"*_test.go"},
		Logger:  quiet,
	}
}

func TestRunGuardsGoFiles(t *testing.T) {
	dir := t.TempDir()
	poster := filepath.Join(dir, "ui", "poster.go")
	writeFile(t, poster, posterSource)

	results, err := Run(dir, defaults())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || !results[0].Changed || results[0].Kind != KindGuard {
		t.Fatalf("Expected one changed Go file, got %+v", results)
	}
	if !strings.Contains(readFile(t, poster), guard.Marker) {
		t.Error("Expected guard in the rewritten file")
	}
	if readFile(t, poster+BackupSuffix) != posterSource {
		t.Error("Expected the original source in the backup")
	}

	// a second pass changes nothing and keeps the backup of the first
	results, err = Run(dir, defaults())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].Changed {
		t.Errorf("Expected no changes on the second pass, got %+v", results)
	}
	if readFile(t, poster+BackupSuffix) != posterSource {
		t.Error("Backup should not be overwritten by an unchanged pass")
	}
}

func TestRunFormatOnly(t *testing.T) {
	dir := t.TempDir()
	messy := filepath.Join(dir, "messy.go")
	writeFile(t, messy, "package ui\nfunc  F( ) {}\n")

	results, err := Run(dir, defaults())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Changed || readFile(t, messy) != "package ui\nfunc  F( ) {}\n" {
		t.Error("Without format, a file without computed functions is unchanged")
	}
	if _, err := os.Stat(messy + BackupSuffix); !os.IsNotExist(err) {
		t.Error("Unchanged files get no backup")
	}

	opts := defaults()
	opts.Format = true
	results, err = Run(dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Changed || readFile(t, messy) != "package ui\n\nfunc F() {}\n" {
		t.Errorf("Expected gofmt output, got %q", readFile(t, messy))
	}
}

func TestRunWritesTrees(t *testing.T) {
	dir := t.TempDir()
	menu := filepath.Join(dir, "menu.tmpl")
	writeFile(t, menu, `<Element><Text content="Home" /></Element>`)

	if _, err := Run(dir, defaults()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(menu + TreeSuffix)
	if err != nil {
		t.Fatalf("Expected tree file: %v", err)
	}
	doc, err := template.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if root := doc.Root(); root == nil || root.Type != "Element" || root.Children[0].Content() != "Home" {
		t.Errorf("Unexpected decoded tree: %+v", doc)
	}
	if _, err := os.Stat(menu + BackupSuffix); !os.IsNotExist(err) {
		t.Error("Templates are not modified, so they get no backup")
	}

	results, _ := Run(dir, defaults())
	if results[0].Changed {
		t.Error("An up to date tree should not be rewritten")
	}
}

func TestRunSkipsAndCollectsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vendor", "x", "x.go"), posterSource)
	writeFile(t, filepath.Join(dir, "testdata", "x.go"), posterSource)
	writeFile(t, filepath.Join(dir, ".hidden", "x.go"), posterSource)
	writeFile(t, filepath.Join(dir, "poster_test.go"), posterSource)
	writeFile(t, filepath.Join(dir, "old.go.orig"), posterSource)
	writeFile(t, filepath.Join(dir, "README.md"), "# ui")
	writeFile(t, filepath.Join(dir, "broken.tmpl"), `<A></B>`)
	writeFile(t, filepath.Join(dir, "ok.tmpl"), `<A/>`)

	results, err := Run(dir, defaults())
	if err == nil {
		t.Fatal("Expected the broken template to fail the run")
	}
	if !stderrors.Is(err, template.ErrMismatchedClosingTag) {
		t.Errorf("Expected MismatchedClosingTag, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected only the two templates to be processed, got %+v", results)
	}
	if _, err := os.Stat(filepath.Join(dir, "ok.tmpl"+TreeSuffix)); err != nil {
		t.Error("A failing file should not stop the walk")
	}
}

func TestRunDiffAndDryRun(t *testing.T) {
	dir := t.TempDir()
	poster := filepath.Join(dir, "poster.go")
	writeFile(t, poster, posterSource)

	var diff bytes.Buffer
	opts := defaults()
	opts.DryRun = true
	opts.Diff = &diff
	results, err := Run(dir, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Changed {
		t.Error("Dry run should still report the change")
	}
	if readFile(t, poster) != posterSource {
		t.Error("Dry run should not write")
	}
	out := diff.String()
	if !strings.Contains(out, "--- "+poster+BackupSuffix) || !strings.Contains(out, "+\t\t\t// "+guard.Marker) {
		t.Errorf("Unexpected diff:\n%s", out)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		patterns []string
		rel      string
		want     bool
	}{
		{[]string{"*.go"}, "ui/poster.go", true},
		{[]string{"ui/*.go"}, "ui/poster.go", true},
		{[]string{"ui/*.go"}, "lib/poster.go", false},
		{[]string{"*_test.go"}, "ui/poster_test.go", true},
		{nil, "poster.go", false},
	}
	for _, tt := range tests {
		if got := matches(tt.patterns, tt.rel); got != tt.want {
			t.Errorf("matches(%v, %q) = %v, want %v", tt.patterns, tt.rel, got, tt.want)
		}
	}
}
