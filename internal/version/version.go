// Package version carries build metadata stamped at link time.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Protocol names the wire protocol this build speaks.
const Protocol = "jsonrpc-2.0+hmac-md5"

func String() string {
	return fmt.Sprintf("voicerpc %s (commit=%s, date=%s, protocol=%s, go=%s)",
		Version, Commit, Date, Protocol, runtime.Version())
}
