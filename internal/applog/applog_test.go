package applog

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_JSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})

	Info("[ENGINE] Turn completed", "user_id", "u1", "turns", 4)
	Sync()

	out := buf.String()
	if !strings.Contains(out, "[ENGINE] Turn completed") {
		t.Fatalf("Expected message in output, got %q", out)
	}
	if !strings.Contains(out, `"user_id":"u1"`) {
		t.Errorf("Expected user_id field in output, got %q", out)
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Info("hidden")
	Warn("shown")
	Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Warn should be logged at warn level: %q", out)
	}
}
