package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/voicerpc/internal/cli"
	"github.com/rbright/voicerpc/internal/config"
	"github.com/rbright/voicerpc/internal/credential"
	"github.com/rbright/voicerpc/internal/doctor"
	"github.com/rbright/voicerpc/internal/ipc"
	"github.com/rbright/voicerpc/internal/logging"
	"github.com/rbright/voicerpc/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("voicerpc"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("voicerpc"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.SlogLevel())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		if cfgLoaded.Exists {
			fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	service := cfgLoaded.Config.Service
	if strings.TrimSpace(parsed.Service) != "" {
		service = parsed.Service
	}

	store, err := credential.NewStore(cfgLoaded.Config.CredentialsPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	resolver, err := ipc.NewResolver(cfgLoaded.Config.SocketDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logger.Info("command start",
		"command", parsed.Command,
		"service", service,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandAddress:
		return r.commandAddress(resolver, service)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, service, store, resolver)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandNotify:
		return r.commandNotify(ctx, newClient(cfgLoaded.Config, store, resolver, logger), service, parsed, logger)
	case cli.CommandRequest:
		return r.commandRequest(ctx, newClient(cfgLoaded.Config, store, resolver, logger), service, parsed)
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, store, resolver, service, parsed.Reply, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func newClient(cfg config.Config, store credential.Store, resolver ipc.Resolver, logger *slog.Logger) *ipc.Client {
	return &ipc.Client{
		Credentials:   store,
		Resolver:      resolver,
		Logger:        logger,
		DialTimeout:   cfg.DialTimeout(),
		StepTimeout:   cfg.StepTimeout(),
		MaxReplyBytes: cfg.MaxReplyBytes,
	}
}

func (r Runner) commandAddress(resolver ipc.Resolver, service string) int {
	addr, err := resolver.Resolve(service)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, addr.Path)
	return 0
}

// commandNotify is fire-and-forget: with --quiet a failure is only logged.
func (r Runner) commandNotify(ctx context.Context, client *ipc.Client, service string, parsed cli.Parsed, logger *slog.Logger) int {
	err := client.Notify(ctx, service, parsed.Method, parsed.Params)
	if err == nil {
		return 0
	}
	if parsed.Quiet {
		logger.Warn("notify dropped", "service", service, "method", parsed.Method, "error", err.Error())
		return 0
	}
	fmt.Fprintf(r.Stderr, "error: %v\n", describe(err))
	return 1
}

func (r Runner) commandRequest(ctx context.Context, client *ipc.Client, service string, parsed cli.Parsed) int {
	reply, err := client.Request(ctx, service, parsed.Method, parsed.Params)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", describe(err))
		return 1
	}
	_, _ = r.Stdout.Write(reply)
	fmt.Fprintln(r.Stdout)
	return 0
}

func (r Runner) commandServe(
	ctx context.Context,
	cfg config.Config,
	store credential.Store,
	resolver ipc.Resolver,
	service string,
	reply string,
	logger *slog.Logger,
) int {
	if err := checkCredential(store, service); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	addr, err := resolver.Resolve(service)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Listen(ctx, addr, 180*time.Millisecond, 8)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	server := &ipc.Server{
		Codec:           ipc.Codec{Platform: addr.Platform},
		Key:             func() ([]byte, error) { return store.Load(service) },
		Handler:         printingHandler(r.Stdout, reply),
		Logger:          logger.With("service", service),
		StepTimeout:     cfg.StepTimeout(),
		MaxMessageBytes: cfg.MaxReplyBytes,
	}

	logger.Info("serving", "address", addr.Path)
	fmt.Fprintf(r.Stderr, "listening on %s\n", addr.Path)
	if err := server.Serve(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		return 1
	}
	return 0
}

// checkCredential confirms service has a usable secret and zeroes the copy it loaded.
func checkCredential(source ipc.CredentialSource, service string) error {
	key, err := source.Load(service)
	if err != nil {
		return err
	}
	clear(key)
	return nil
}

// printingHandler writes one line per message and answers with reply when set.
func printingHandler(out io.Writer, reply string) ipc.Handler {
	var (
		mu         sync.Mutex
		replyBytes []byte
	)
	if reply != "" {
		replyBytes = []byte(reply)
	}

	return ipc.HandlerFunc(func(_ context.Context, msg ipc.Message) []byte {
		mu.Lock()
		fmt.Fprintf(out, "%s %s\n", msg.Method, string(msg.Params))
		mu.Unlock()
		return replyBytes
	})
}

// describe adds a hint for error kinds a user can act on.
func describe(err error) error {
	switch {
	case errors.Is(err, ipc.ErrCredentialNotFound):
		return fmt.Errorf("%w (check ~/%s)", err, credential.FileName)
	case errors.Is(err, ipc.ErrAuthenticationRejected):
		return fmt.Errorf("%w (secret mismatch or untrusted peer)", err)
	case errors.Is(err, ipc.ErrTransport):
		return fmt.Errorf("%w (is the voice server running?)", err)
	default:
		return err
	}
}
