//go:build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
)

// DialAddress opens a unix socket. Named pipes exist only on windows.
func DialAddress(ctx context.Context, addr Address) (net.Conn, error) {
	if addr.Platform == PlatformPipe {
		return nil, fmt.Errorf("named pipe %s is not reachable on this platform", addr.Path)
	}
	return dialSocket(ctx, addr)
}
