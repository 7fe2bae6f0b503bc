package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesJSONToNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf})

	log.Info("dropped")
	log.Warn("kept", "component", "Menu1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" {
		t.Errorf("Expected msg kept, got %v", rec["msg"])
	}
	if rec["component"] != "Menu1" {
		t.Errorf("Expected component Menu1, got %v", rec["component"])
	}
}

func TestNewLevelVar(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelError)
	log := New(Options{Writer: &buf, Level: level})

	log.Warn("quiet")
	if buf.Len() != 0 {
		t.Errorf("Expected nothing below error, got %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	log.Debug("Setting up Menu component")
	if !bytes.Contains(buf.Bytes(), []byte("Setting up Menu component")) {
		t.Errorf("Expected debug record after lowering level, got %q", buf.String())
	}
}

func TestJournalKey(t *testing.T) {
	tests := map[string]string{
		"component":   "COMPONENT",
		"hover.chain": "HOVER_CHAIN",
		"err2":        "ERR2",
	}
	for in, want := range tests {
		if got := journalKey(in); got != want {
			t.Errorf("journalKey(%q): expected %q, got %q", in, want, got)
		}
	}
}
