package ipc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	pipeNamespace = `\\.\pipe\voicerpc`
	socketDirName = ".voicerpc"
)

// Address is a resolved channel endpoint.
type Address struct {
	Platform Platform
	Path     string
}

func (a Address) String() string {
	return a.Path
}

// Resolver maps service names to channel addresses for one user.
type Resolver struct {
	Platform Platform
	HomeDir  string
	// SocketDir replaces ~/.voicerpc on the socket platform when set.
	SocketDir string
}

// NewResolver builds a Resolver for the current user and platform.
func NewResolver(socketDir string) (Resolver, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Resolver{}, fmt.Errorf("%w: resolve home directory: %w", ErrAddressResolution, err)
	}
	return Resolver{Platform: CurrentPlatform(), HomeDir: home, SocketDir: socketDir}, nil
}

// Resolve returns the address the peer for service listens on.
// Existence is not checked; a missing peer surfaces as a dial error.
func (r Resolver) Resolve(service string) (Address, error) {
	if r.Platform == PlatformSocket && strings.TrimSpace(r.SocketDir) != "" {
		if err := validateService(service); err != nil {
			return Address{}, err
		}
		return Address{Platform: PlatformSocket, Path: filepath.Join(r.SocketDir, service+".sock")}, nil
	}
	return ResolveFor(r.Platform, r.HomeDir, service)
}

// ResolveFor derives the address for service from an explicit platform and home directory.
func ResolveFor(platform Platform, home, service string) (Address, error) {
	if err := validateService(service); err != nil {
		return Address{}, err
	}
	if strings.TrimSpace(home) == "" {
		return Address{}, fmt.Errorf("%w: home directory is empty", ErrAddressResolution)
	}

	switch platform {
	case PlatformPipe:
		user := homeBase(home)
		if user == "" {
			return Address{}, fmt.Errorf("%w: cannot derive user segment from home %q", ErrAddressResolution, home)
		}
		return Address{Platform: PlatformPipe, Path: pipeNamespace + `\` + user + `\` + service}, nil
	case PlatformSocket:
		return Address{Platform: PlatformSocket, Path: filepath.Join(home, socketDirName, service+".sock")}, nil
	default:
		return Address{}, fmt.Errorf("%w: unsupported platform %q", ErrAddressResolution, platform)
	}
}

// homeBase returns the final path component of home regardless of separator style.
func homeBase(home string) string {
	trimmed := strings.TrimRight(home, `\/`)
	if i := strings.LastIndexAny(trimmed, `\/`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func validateService(service string) error {
	if service == "" {
		return fmt.Errorf("%w: service name is empty", ErrAddressResolution)
	}
	if strings.ContainsAny(service, `/\`) || service == "." || service == ".." {
		return fmt.Errorf("%w: invalid service name %q", ErrAddressResolution, service)
	}
	return nil
}
