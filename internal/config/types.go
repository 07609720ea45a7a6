// Package config resolves, parses, validates, and defaults voicerpc configuration.
package config

import (
	"log/slog"
	"time"
)

// Config is the fully materialized runtime configuration used by voicerpc.
type Config struct {
	Service         string
	CredentialsPath string
	SocketDir       string
	DialTimeoutMS   int
	StepTimeoutMS   int
	MaxReplyBytes   int
	LogLevel        string
}

// DialTimeout returns the channel connect timeout.
func (c Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

// StepTimeout returns the bound on each inbound-message wait.
func (c Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutMS) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level. Validate rejects unknown names.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
