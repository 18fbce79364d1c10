package app

import (
	"cmp"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kelreel/sonichash/internal/config"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/logging"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/out"
	"github.com/kelreel/sonichash/internal/schema"
	"github.com/kelreel/sonichash/internal/version"
)

// Runner executes one CLI invocation and maps its outcome to an exit code.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	logger        zerolog.Logger
	svc           *services
	root          *cobra.Command
	lastCommand   string
	lastProviders []model.ProviderStatus
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, logger: zerolog.Nop()}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)

	defer state.close()
	if err := normalizeRunError(root.Execute()); err != nil {
		state.renderError("", err, state.lastProviders)
		return clierr.ExitCode(err)
	}
	return 0
}

func (s *runtimeState) close() {
	if s.svc != nil {
		s.svc.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               version.CLIName,
		Short:             "Persona chat agent for the Sonic chain",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})
	s.bindGlobalFlags(root.PersistentFlags())
	root.AddCommand(
		s.newChatCommand(),
		s.newPortfolioCommand(),
		s.newPricesCommand(),
		s.newPersonasCommand(),
		s.newActionsCommand(),
		s.newServeCommand(),
		s.newProvidersCommand(),
		s.newSchemaCommand(),
		s.newVersionCommand(),
	)
	s.root = root
	return root
}

// setup resolves settings and the shared services once per invocation.
func (s *runtimeState) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	settings, err := config.Load(s.flags)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
	}
	s.settings = settings
	s.lastCommand = trimRootPath(cmd.CommandPath())
	s.logger = logging.New(s.runner.stderr, settings.LogLevel, settings.LogFormat)
	if s.svc == nil {
		s.svc = newServices(settings, s.logger)
	}
	return nil
}

func (s *runtimeState) bindGlobalFlags(fs *pflag.FlagSet) {
	f := &s.flags
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.JSON, "json", false, "Output JSON envelopes (default)")
	fs.BoolVar(&f.Plain, "plain", false, "Output plain text")
	fs.StringVar(&f.Select, "select", "", "Keep only these data fields; dotted paths allowed (comma-separated)")
	fs.BoolVar(&f.ResultsOnly, "results-only", false, "Print the data payload without the envelope")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFormat, "log-format", "", "Log format (console or json)")
	fs.StringVar(&f.Timeout, "timeout", "", "Per-request upstream timeout, e.g. 10s")
	fs.IntVar(&f.Retries, "retries", -1, "Retries per upstream request")
	fs.StringVar(&f.RPCURL, "rpc-url", "", "Sonic JSON-RPC endpoint")
	fs.StringVar(&f.PersonaDir, "persona-dir", "", "Directory of persona YAML files")
	fs.StringVar(&f.EnableActions, "enable-actions", "", "Action types the detector may return (comma-separated)")
}

func (s *runtimeState) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), version.Current(), nil, nil)
		},
	}
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Describe commands, arguments and flags as JSON",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	providers := &cobra.Command{Use: "providers", Short: "Upstream services used by the agent"}
	providers.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List upstreams with their capabilities and key variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.svc.providerInfos, nil, nil)
		},
	})
	return providers
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, providers []model.ProviderStatus) error {
	env := model.Success(commandPath, s.runner.now(), data, warnings, providers)
	return out.Render(s.runner.stdout, env, s.settings)
}

// renderError always writes a full JSON or plain envelope to stderr, whatever
// --results-only or --select asked for.
func (s *runtimeState) renderError(commandPath string, err error, providers []model.ProviderStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = cmp.Or(s.lastCommand, version.CLIName)
	}
	settings := s.settings
	settings.OutputMode = cmp.Or(settings.OutputMode, "json")
	settings.ResultsOnly = false
	settings.SelectFields = nil
	_ = out.Render(s.runner.stderr, model.Failure(commandPath, s.runner.now(), err, providers), settings)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	switch _, coded := clierr.As(err); {
	case err == nil || coded:
		return err
	case isLikelyUsageError(err):
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	default:
		return clierr.Wrap(clierr.CodeInternal, "execute command", err)
	}
}

// cobraUsageMarkers are fragments of the argument and flag errors cobra
// returns without a code.
var cobraUsageMarkers = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"required flag(s)",
	"flag needs an argument",
	"requires at least",
	"requires exactly",
	"accepts ",
	"invalid argument",
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(cobraUsageMarkers, func(marker string) bool {
		return strings.Contains(msg, marker)
	})
}
