package ipc

import (
	"context"
	"net"
)

// DialFunc opens a channel to addr.
type DialFunc func(ctx context.Context, addr Address) (net.Conn, error)

func dialSocket(ctx context.Context, addr Address) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", addr.Path)
}
