package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"
)

type jsoncConfig struct {
	Service         *string `json:"service"`
	CredentialsPath *string `json:"credentials_path"`
	SocketDir       *string `json:"socket_dir"`
	DialTimeoutMS   *int    `json:"dial_timeout_ms"`
	StepTimeoutMS   *int    `json:"step_timeout_ms"`
	MaxReplyBytes   *int    `json:"max_reply_bytes"`
	LogLevel        *string `json:"log_level"`
}

// Parse reads JSONC configuration content on top of base.
//
// Comments and trailing commas are blanked in place, so decode error offsets
// still point into the original content.
func Parse(content []byte, base Config) (Config, []Warning, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized := jsonc.ToJSON(content)

	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(normalized), err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(string(normalized), err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if payload.Service != nil {
		cfg.Service = strings.TrimSpace(*payload.Service)
	}
	if payload.CredentialsPath != nil {
		cfg.CredentialsPath = strings.TrimSpace(*payload.CredentialsPath)
	}
	if payload.SocketDir != nil {
		cfg.SocketDir = strings.TrimSpace(*payload.SocketDir)
	}
	if payload.DialTimeoutMS != nil {
		cfg.DialTimeoutMS = *payload.DialTimeoutMS
	}
	if payload.StepTimeoutMS != nil {
		cfg.StepTimeoutMS = *payload.StepTimeoutMS
	}
	if payload.MaxReplyBytes != nil {
		cfg.MaxReplyBytes = *payload.MaxReplyBytes
	}
	if payload.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*payload.LogLevel))
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
