package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options selects where logs go and how verbose they are.
type Options struct {
	Level string // debug, info, warn, error
	// ToFile writes to a dated file in the user state directory.
	ToFile bool
	// Stderr is used when ToFile is false. Defaults to os.Stderr.
	Stderr io.Writer
}

// Setup creates a slog.Logger according to opts. The returned closer must be
// called on exit; it is a no-op when logging to stderr.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = opts.Stderr
		closer io.Closer = nopCloser{}
	)
	if w == nil {
		w = os.Stderr
	}
	if opts.ToFile {
		f, err := openFile()
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// LevelForVerbosity returns "debug" when any -v flag was given, else base.
func LevelForVerbosity(base string, verbose int) string {
	if verbose > 0 {
		return "debug"
	}
	return base
}

func openFile() (*os.File, error) {
	stateDir, err := StateDir()
	if err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, fmt.Sprintf("mpdbridge-%s.log", time.Now().Format("20060102")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// StateDir returns the mpdbridge state directory (~/.config/mpdbridge/state).
func StateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "mpdbridge", "state"), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
