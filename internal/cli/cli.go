package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandNotify  Command = "notify"
	CommandRequest Command = "request"
	CommandAddress Command = "address"
	CommandDoctor  Command = "doctor"
	CommandServe   Command = "serve"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandNotify:  {},
	CommandRequest: {},
	CommandAddress: {},
	CommandDoctor:  {},
	CommandServe:   {},
	CommandVersion: {},
	CommandHelp:    {},
}

// defaultParams is sent when --params is omitted.
const defaultParams = "{}"

type Parsed struct {
	Command    Command
	ConfigPath string
	// Service is empty when the config default applies.
	Service  string
	Method   string
	Params   json.RawMessage
	Reply    string
	Quiet    bool
	ShowHelp bool
}

func Parse(args []string) (Parsed, error) {
	var (
		parsed      Parsed
		params      string
		showHelp    bool
		showVersion bool
	)

	flags := pflag.NewFlagSet("voicerpc", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	flags.StringVarP(&parsed.Service, "service", "s", "", "service name")
	flags.StringVarP(&params, "params", "p", defaultParams, "JSON params")
	flags.StringVar(&parsed.Reply, "reply", "", "reply payload for serve")
	flags.BoolVarP(&parsed.Quiet, "quiet", "q", false, "swallow notify failures")
	flags.BoolVarP(&showHelp, "help", "h", false, "show help")
	flags.BoolVar(&showVersion, "version", false, "show version")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Parsed{Command: CommandHelp, ShowHelp: true}, nil
		}
		return Parsed{}, err
	}

	if showHelp {
		return Parsed{Command: CommandHelp, ShowHelp: true}, nil
	}
	if showVersion {
		return Parsed{Command: CommandVersion}, nil
	}

	positional := flags.Args()
	if len(positional) == 0 {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		return parsed, nil
	}

	cmd := Command(positional[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", positional[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp
	rest := positional[1:]

	switch cmd {
	case CommandNotify, CommandRequest:
		if len(rest) == 0 {
			return Parsed{}, fmt.Errorf("%s requires a method", cmd)
		}
		parsed.Method = rest[0]
		rest = rest[1:]
		if !json.Valid([]byte(params)) {
			return Parsed{}, fmt.Errorf("--params must be valid JSON")
		}
		parsed.Params = json.RawMessage(params)
	default:
		if flags.Changed("params") {
			return Parsed{}, fmt.Errorf("--params only applies to notify and request")
		}
	}

	if flags.Changed("reply") && cmd != CommandServe {
		return Parsed{}, fmt.Errorf("--reply only applies to serve")
	}
	if len(rest) != 0 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", cmd)
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command> [method]

Commands:
  notify METHOD    Authenticate to the service and send one notification
  request METHOD   Authenticate, send one request, and print the raw reply
  address          Print the resolved channel address for the service
  doctor           Check credentials and channel address for the service
  serve            Run a local peer that logs messages (for testing clients)
  version          Print version information
  help             Show this help

Flags:
  --config PATH        Config file path (default: $VOICERPC_CONFIG, then $XDG_CONFIG_HOME/voicerpc/config.jsonc)
  -s, --service NAME   Service name (default from config, "default")
  -p, --params JSON    Params for notify/request (default: {})
  --reply TEXT         Reply sent by serve after each message
  -q, --quiet          Log notify failures without failing the command
  -h, --help           Show help
  --version            Show version
`, binaryName)
}
