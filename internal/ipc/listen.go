package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var ErrAlreadyListening = errors.New("voicerpc peer already listening")

// Listen binds addr for a peer. A stale unix socket left by a dead peer is
// removed and the bind retried; a live listener yields ErrAlreadyListening.
func Listen(ctx context.Context, addr Address, probeTimeout time.Duration, retries int) (net.Listener, error) {
	if addr.Platform == PlatformPipe {
		return listenPipe(addr)
	}

	if err := os.MkdirAll(filepath.Dir(addr.Path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", addr.Path)
		if err == nil {
			_ = os.Chmod(addr.Path, 0o600)
			return listener, nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", addr.Path, err)
		}

		alive, probeErr := Probe(ctx, addr, probeTimeout)
		if alive {
			return nil, ErrAlreadyListening
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", addr.Path, probeErr)
		}

		if removeErr := os.Remove(addr.Path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", addr.Path, removeErr)
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", addr.Path, retries)
}

// Probe reports whether something accepts connections at addr. It only
// connects; no handshake is attempted.
func Probe(ctx context.Context, addr Address, timeout time.Duration) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := DialAddress(probeCtx, addr)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if isSocketMissing(err) || isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
