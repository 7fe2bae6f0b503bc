package testing

import (
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// TestingT is the subset of *testing.T used by MatchesFile, allowing
// test doubles to intercept failures.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
	Name() string
}

// Snapshot is the text dump of a stage tree (see stage.Node.Dump).
type Snapshot struct {
	Tree string
}

// CaptureSnapshot captures the current stage tree.
func (t *Tester) CaptureSnapshot() *Snapshot {
	return &Snapshot{Tree: t.stage.RootNode().Dump()}
}

// MatchesFile compares this snapshot against a golden file. On mismatch it
// reports a diff and instructions for updating. When BEAM_UPDATE_SNAPSHOTS=1
// is set, the file is silently updated instead.
func (s *Snapshot) MatchesFile(t TestingT, path string) {
	t.Helper()

	if os.Getenv("BEAM_UPDATE_SNAPSHOTS") == "1" {
		if err := s.UpdateFile(path); err != nil {
			t.Fatalf("failed to update snapshot: %v", err)
		}
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("snapshot file missing: %s\n\nTo create: BEAM_UPDATE_SNAPSHOTS=1 go test -run %s", path, t.Name())
			return
		}
		t.Fatalf("failed to load snapshot: %v", err)
		return
	}

	if diff := s.Diff(&Snapshot{Tree: string(data)}); diff != "" {
		t.Errorf("snapshot mismatch: %s\n%s\n\nTo update: BEAM_UPDATE_SNAPSHOTS=1 go test -run %s", path, diff, t.Name())
	}
}

// UpdateFile writes this snapshot to the given path, creating directories
// as needed.
func (s *Snapshot) UpdateFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s.Tree), 0o644)
}

// Diff returns a unified diff from expected to this snapshot. Returns the
// empty string if equal.
func (s *Snapshot) Diff(expected *Snapshot) string {
	if s.Tree == expected.Tree {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected.Tree),
		B:        difflib.SplitLines(s.Tree),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}
