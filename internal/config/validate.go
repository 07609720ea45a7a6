package config

import (
	"fmt"
	"strings"
)

const minStepTimeoutMS = 50

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		return nil, fmt.Errorf("service must not be empty")
	}
	if strings.ContainsAny(service, `/\`) {
		return nil, fmt.Errorf("service must not contain path separators")
	}
	if cfg.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("dial_timeout_ms must be > 0")
	}
	if cfg.StepTimeoutMS <= 0 {
		return nil, fmt.Errorf("step_timeout_ms must be > 0")
	}
	if cfg.MaxReplyBytes <= 0 {
		return nil, fmt.Errorf("max_reply_bytes must be > 0")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	if cfg.StepTimeoutMS < minStepTimeoutMS {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("step_timeout_ms=%d is very low; handshakes may time out", cfg.StepTimeoutMS),
		})
	}

	return warnings, nil
}
