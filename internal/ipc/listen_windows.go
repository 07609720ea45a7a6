//go:build windows

package ipc

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

const pipeBufferSize = 64 * 1024

func listenPipe(addr Address) (net.Listener, error) {
	listener, err := winio.ListenPipe(addr.Path, &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("listen pipe %s: %w", addr.Path, err)
	}
	return listener, nil
}
