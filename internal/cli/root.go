package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/quadrant/internal/config"
	"github.com/roach88/quadrant/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are populated before any subcommand runs.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// flagKeys maps flag names onto the config keys they override.
var flagKeys = map[string]string{
	"addr":  "server.addr",
	"db":    "store.path",
	"owner": "owner.id",
	"url":   "client.url",
}

// NewRootCommand creates the root command for the quadrant CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quadrant",
		Short: "quadrant - live Eisenhower matrix",
		Long: `A task prioritisation service that scores tasks by importance and urgency
and keeps every connected client's list in sync over a WebSocket channel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	cmd.PersistentFlags().String("owner", "", "owner id for this connection")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTaskCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads configuration and installs the default logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	var bindings []config.FlagBinding
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			bindings = append(bindings, config.FlagBinding{Key: key, Flag: f})
		}
	}

	cfg, err := config.Load(o.ConfigPath, bindings...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	slog.SetDefault(logger)

	o.Config = cfg
	o.Logger = logger
	return nil
}

// formatter returns an OutputFormatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
