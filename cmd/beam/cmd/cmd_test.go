package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-drift/beam/pkg/logging"
	"github.com/go-drift/beam/pkg/template"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &out
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHelpAndVersion(t *testing.T) {
	out := capture(t)
	if err := run(nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"parse", "check", "precompile", "render"} {
		if !strings.Contains(out.String(), "  "+name) {
			t.Errorf("Help should list %s:\n%s", name, out)
		}
	}

	out.Reset()
	if err := run([]string{"--version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Beam CLI version "+Version) {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestUnknownCommandAndBadFlags(t *testing.T) {
	capture(t)
	if err := run([]string{"deploy"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Expected unknown command error, got %v", err)
	}
	if err := run([]string{"--log-level", "loud", "parse"}); err == nil {
		t.Error("Expected invalid log level error")
	}
	if err := run([]string{"--log-level"}); err == nil {
		t.Error("Expected missing log level error")
	}
}

func TestJournalLogging(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "menu.tmpl"), `<Element />`)
	capture(t)

	var got []logging.Options
	old := newLogger
	newLogger = func(opts logging.Options) *slog.Logger {
		got = append(got, opts)
		return old(logging.Options{Writer: io.Discard, Level: opts.Level})
	}
	t.Cleanup(func() { newLogger = old })

	t.Setenv("JOURNAL_STREAM", "")
	for _, args := range [][]string{
		{"check", src},
		{"--journal", "check", src},
	} {
		if err := run(args); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	t.Setenv("JOURNAL_STREAM", "8:12345")
	if err := run([]string{"check", src}); err != nil {
		t.Fatalf("check: %v", err)
	}

	var journal []bool
	for _, opts := range got {
		journal = append(journal, opts.Journal)
	}
	if diff := cmp.Diff([]bool{false, true, true}, journal); diff != "" {
		t.Errorf("Journal mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "menu.tmpl"), `<Element x="1"><Text>hi</Text></Element>`)

	out := capture(t)
	if err := run([]string{"parse", src}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{`"type": "Element"`, `"x": "1"`, `"content": "hi"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %s in:\n%s", want, out)
		}
	}

	doc := template.MustParse(`<Poster :title="$t"/>`)
	data, err := template.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	tree := writeFile(t, filepath.Join(dir, "poster.tmpl.tree"), string(data))
	out.Reset()
	if err := run([]string{"parse", tree}); err != nil {
		t.Fatalf("parse tree: %v", err)
	}
	if !strings.Contains(out.String(), `":title": "$t"`) {
		t.Errorf("Expected decoded tree, got:\n%s", out)
	}

	if err := run([]string{"parse"}); err == nil {
		t.Error("Expected usage error without a file")
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.tmpl"), `<Element :x="$x * 2"/>`)
	bad := writeFile(t, filepath.Join(dir, "bad.tmpl"), "<Element>\n  <Text></Element>")
	expr := writeFile(t, filepath.Join(dir, "expr.tmpl"), `<Element :x="(($a"/>`)

	out := capture(t)
	err := run([]string{"check", good, bad, expr})
	if err == nil || !strings.Contains(err.Error(), "2 of 3 templates failed") {
		t.Fatalf("Expected two failures, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected one line per failure, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], bad+":2:") || !strings.Contains(lines[0], "TemplateStructureError MismatchedClosingTag") {
		t.Errorf("Unexpected parse diagnostic %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], expr+": codegen: expr:") {
		t.Errorf("Unexpected codegen diagnostic %q", lines[1])
	}
}

func TestPrecompile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/tvapp\n")
	writeFile(t, filepath.Join(dir, "beam.yaml"), "precompile:\n  include: [\"*.tmpl\"]\n")
	menu := writeFile(t, filepath.Join(dir, "ui", "menu.tmpl"), `<Element/>`)
	writeFile(t, filepath.Join(dir, "ui", "menu.go"), "package ui\nfunc  F( ) {}\n")
	t.Chdir(dir)

	out := capture(t)
	if err := run([]string{"precompile", "--dry-run"}); err != nil {
		t.Fatalf("precompile: %v", err)
	}
	if !strings.Contains(out.String(), "1 files checked, would update 1, 0 failed") {
		t.Errorf("Unexpected summary %q", out)
	}
	if _, err := os.Stat(menu + ".tree"); !os.IsNotExist(err) {
		t.Error("Dry run should not write the tree")
	}

	out.Reset()
	if err := run([]string{"precompile", "ui"}); err != nil {
		t.Fatalf("precompile: %v", err)
	}
	if _, err := os.Stat(menu + ".tree"); err != nil {
		t.Errorf("Expected tree file: %v", err)
	}
}

func TestPrecompileFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/tvapp\n")
	messy := writeFile(t, filepath.Join(dir, "ui", "menu.go"), "package ui\nfunc  F( ) {}\n")
	t.Chdir(dir)

	out := capture(t)
	if err := run([]string{"precompile"}); err != nil {
		t.Fatalf("precompile: %v", err)
	}
	if !strings.Contains(out.String(), "1 files checked, updated 0, 0 failed") {
		t.Errorf("Unexpected summary %q", out)
	}
	if data, _ := os.ReadFile(messy); string(data) != "package ui\nfunc  F( ) {}\n" {
		t.Errorf("Unguarded file should be left unformatted, got %q", data)
	}

	out.Reset()
	if err := run([]string{"precompile", "--format"}); err != nil {
		t.Fatalf("precompile: %v", err)
	}
	if data, _ := os.ReadFile(messy); string(data) != "package ui\n\nfunc F() {}\n" {
		t.Errorf("Expected gofmt output with --format, got %q", data)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "banner.tmpl"), `<Element w="10"><Text :content="$title"/></Element>`)
	state := writeFile(t, filepath.Join(dir, "state.yaml"), "title: Hello\n")
	cfg := writeFile(t, filepath.Join(dir, "settings.yaml"), "w: 1280\nh: 720\n")

	out := capture(t)
	if err := run([]string{"render", src, "--state", state, "--settings", cfg}); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "Element h=720 w=1280\n  Element\n    Element w=10\n      Text content=Hello\n"
	if out.String() != want {
		t.Errorf("Unexpected tree:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderTrace(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, filepath.Join(dir, "empty.tmpl"), `<Element/>`)

	out := capture(t)
	if err := run([]string{"render", src, "--trace", "--settings", filepath.Join(dir, "missing.yaml")}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.String(), `"budgetMs": 16.667`) || !strings.Contains(out.String(), `"frame": 1`) {
		t.Errorf("Expected a frame timeline, got:\n%s", out)
	}
}
