// Package credential reads per-service shared secrets from the per-user voicerpc credential file.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// FileName is the credential file name inside the user's home directory.
const FileName = ".voicerpc.json"

var (
	// ErrNotFound reports a missing credential file or a missing service entry.
	ErrNotFound = errors.New("credential not found")
	// ErrMalformed reports a credential file or entry that cannot be decoded.
	ErrMalformed = errors.New("credential malformed")
)

// Store loads secrets from one credential file. The file is re-read on every
// call so that rotation by the peer takes effect on the next connection.
type Store struct {
	Path string
}

// DefaultPath returns ~/.voicerpc.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home for credential file: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// NewStore uses explicit when set, otherwise the default credential path.
func NewStore(explicit string) (Store, error) {
	if strings.TrimSpace(explicit) != "" {
		return Store{Path: explicit}, nil
	}
	path, err := DefaultPath()
	if err != nil {
		return Store{}, err
	}
	return Store{Path: path}, nil
}

// Load returns the decoded secret for service. The caller owns the returned slice.
func (s Store) Load(service string) ([]byte, error) {
	entries, err := s.read()
	if err != nil {
		return nil, err
	}

	raw, ok := entries[service]
	if !ok {
		return nil, fmt.Errorf("%w: no entry for service %q in %s", ErrNotFound, service, s.Path)
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("%w: entry for service %q is not a string", ErrMalformed, service)
	}

	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: entry for service %q: %w", ErrMalformed, service, err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: entry for service %q is empty", ErrMalformed, service)
	}
	return secret, nil
}

// Services lists the service names present in the credential file, sorted.
func (s Store) Services() ([]string, error) {
	entries, err := s.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s Store) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("read credential file %s: %w", s.Path, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrMalformed, s.Path, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: %s does not hold a JSON object", ErrMalformed, s.Path)
	}
	return entries, nil
}
