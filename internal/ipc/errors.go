package ipc

import (
	"errors"
	"fmt"
	"os"

	"github.com/rbright/voicerpc/internal/credential"
	"github.com/rbright/voicerpc/internal/secret"
)

// Error kinds returned by Client calls. Match with errors.Is.
var (
	ErrAddressResolution      = errors.New("address resolution failed")
	ErrCredentialNotFound     = credential.ErrNotFound
	ErrCredentialMalformed    = credential.ErrMalformed
	ErrTransport              = errors.New("transport error")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrProtocolViolation      = errors.New("protocol violation")
	ErrTimeout                = errors.New("timed out waiting for peer")
)

// transportError classifies an I/O failure as a timeout or a transport error.
func transportError(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// protectKeyError keeps configuration faults apart from resource faults
// raised while moving a secret into protected memory.
func protectKeyError(err error) error {
	if errors.Is(err, secret.ErrEmptyKey) {
		return fmt.Errorf("%w: %w", ErrCredentialMalformed, err)
	}
	return fmt.Errorf("protect credential: %w", err)
}
