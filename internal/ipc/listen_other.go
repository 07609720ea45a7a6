//go:build !windows

package ipc

import (
	"fmt"
	"net"
)

func listenPipe(addr Address) (net.Listener, error) {
	return nil, fmt.Errorf("named pipe %s cannot be served on this platform", addr.Path)
}
