// Package logging writes voicerpc's JSONL log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath overrides the log file location.
const EnvPath = "VOICERPC_LOG"

// Runtime is an open log sink and the logger writing to it.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New opens the log file for appending. Every record carries the pid so
// concurrent CLI invocations sharing one file stay distinguishable.
func New(level slog.Level) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})).
		With("pid", os.Getpid())
	return Runtime{Logger: logger, Path: path, closer: f}, nil
}

// resolveLogPath: $VOICERPC_LOG, then $XDG_STATE_HOME, then ~/.local/state.
func resolveLogPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "voicerpc", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "voicerpc", "log.jsonl"), nil
}
