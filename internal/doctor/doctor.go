// Package doctor runs readiness diagnostics for config, credentials, and the peer channel.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/voicerpc/internal/config"
	"github.com/rbright/voicerpc/internal/credential"
	"github.com/rbright/voicerpc/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run checks that service is reachable with the given credentials and resolver.
// The peer is only probed for a listener; no handshake is attempted.
func Run(ctx context.Context, cfg config.Loaded, service string, store credential.Store, resolver ipc.Resolver) Report {
	checks := []Check{checkConfig(cfg)}

	checks = append(checks, checkCredentialFile(store))
	checks = append(checks, checkServiceCredential(store, service))

	addr, err := resolver.Resolve(service)
	if err != nil {
		checks = append(checks, Check{Name: "address", Pass: false, Message: err.Error()})
		return Report{Checks: checks}
	}
	checks = append(checks, Check{Name: "address", Pass: true, Message: fmt.Sprintf("%s (%s)", addr.Path, addr.Platform)})
	checks = append(checks, checkChannel(ctx, addr, cfg.Config.DialTimeout()))

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkCredentialFile validates that the credential file parses.
func checkCredentialFile(store credential.Store) Check {
	services, err := store.Services()
	if err != nil {
		return Check{Name: "credentials", Pass: false, Message: err.Error()}
	}
	return Check{Name: "credentials", Pass: true, Message: fmt.Sprintf("%d service(s) in %s", len(services), store.Path)}
}

// checkServiceCredential decodes the service secret without echoing it.
func checkServiceCredential(store credential.Store, service string) Check {
	name := "credentials." + service
	key, err := store.Load(service)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	size := len(key)
	clear(key)
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("secret decodes to %d bytes", size)}
}

// checkChannel verifies that a peer is listening at addr.
func checkChannel(ctx context.Context, addr ipc.Address, timeout time.Duration) Check {
	if addr.Platform == ipc.PlatformSocket {
		stat, err := os.Stat(addr.Path)
		if err != nil {
			return Check{Name: "channel", Pass: false, Message: fmt.Sprintf("socket missing: %v", err)}
		}
		if stat.Mode().Type() != os.ModeSocket {
			return Check{Name: "channel", Pass: false, Message: fmt.Sprintf("%s is not a unix socket", addr.Path)}
		}
	}

	alive, err := ipc.Probe(ctx, addr, timeout)
	if err != nil {
		return Check{Name: "channel", Pass: false, Message: err.Error()}
	}
	if !alive {
		return Check{Name: "channel", Pass: false, Message: fmt.Sprintf("no peer listening at %s", addr.Path)}
	}
	return Check{Name: "channel", Pass: true, Message: fmt.Sprintf("peer listening at %s", addr.Path)}
}
