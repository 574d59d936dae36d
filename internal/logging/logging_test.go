package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestSetupStderr(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := Setup(Options{Level: "warn", Stderr: &buf})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown k=v") {
		t.Errorf("output = %q", out)
	}
}

func TestSetupFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("AppData", dir)

	log, closer, err := Setup(Options{ToFile: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Info("to file")
	closer.Close()

	stateDir, _ := StateDir()
	matches, _ := filepath.Glob(filepath.Join(stateDir, "mpdbridge-*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestLevelForVerbosity(t *testing.T) {
	if got := LevelForVerbosity("warn", 0); got != "warn" {
		t.Errorf("got %q", got)
	}
	if got := LevelForVerbosity("info", 1); got != "debug" {
		t.Errorf("got %q", got)
	}
	if got := LevelForVerbosity("error", 2); got != "debug" {
		t.Errorf("got %q", got)
	}
}
