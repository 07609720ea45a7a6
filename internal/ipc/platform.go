package ipc

import "runtime"

// Platform selects the channel kind and its message framing convention.
type Platform string

const (
	// PlatformSocket is a unix domain socket with 4-byte length-prefixed messages.
	PlatformSocket Platform = "socket"
	// PlatformPipe is a Windows named pipe delivering discrete messages.
	PlatformPipe Platform = "pipe"
)

// CurrentPlatform reports the platform of the running process.
func CurrentPlatform() Platform {
	if runtime.GOOS == "windows" {
		return PlatformPipe
	}
	return PlatformSocket
}
