package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath names a config file when --config is not given.
const EnvPath = "VOICERPC_CONFIG"

// ResolvePath picks the config file and reports whether the caller named it.
// Precedence: explicit flag, $VOICERPC_CONFIG, $XDG_CONFIG_HOME, ~/.config.
func ResolvePath(explicit string) (path string, named bool, err error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, true, nil
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p, true, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "voicerpc", "config.jsonc"), false, nil
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", false, errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "voicerpc", "config.jsonc"), false, nil
}
