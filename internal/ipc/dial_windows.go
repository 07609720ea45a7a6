//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// DialAddress opens a named pipe or unix socket depending on addr.Platform.
func DialAddress(ctx context.Context, addr Address) (net.Conn, error) {
	if addr.Platform == PlatformPipe {
		return winio.DialPipeContext(ctx, addr.Path)
	}
	return dialSocket(ctx, addr)
}
