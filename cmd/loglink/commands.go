package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/socketrpc"
	"github.com/tinytelemetry/loglink/internal/viewer"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	endpoints  map[string]string
	filter     string
	logLevel   string
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "loglink",
		Short: "loglink synchronized log viewer",
		Long: `loglink shows the logs of every rank of a client/server session side
by side, keeps their panes aligned in time, and controls each process's
verbosity and category promotion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUICommand(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.config/loglink/config.yml)")
	flags.StringToStringVar(&opts.endpoints, "endpoint", nil, "recorder endpoint as location=address, repeatable")
	flags.StringVar(&opts.filter, "filter", "", "initial wildcard filter applied to every pane")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newTUICmd(opts),
		newStatusCmd(opts),
		newVerbosityCmd(opts),
		newPromoteCmd(opts),
		newClearCmd(opts),
	)
	return cmd
}

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive viewer (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUICommand(cmd, opts)
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print every recorder's verbosity and overrides as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *viewer.Session) error {
				return printStatus(ctx, cmd.OutOrStdout(), s)
			})
		},
	}
}

func newVerbosityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verbosity <location> <level>",
		Short: "Set a process's global verbosity",
		Example: `  loglink verbosity data-server warning
  loglink verbosity client 3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := model.ParseLocation(args[0])
			if err != nil {
				return err
			}
			level, err := model.ParseVerbosity(args[1])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *viewer.Session) error {
				if err := s.SetProcessVerbosity(ctx, loc, level); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s verbosity set to %s\n", loc.DisplayName(), level)
				return nil
			})
		},
	}
}

func newPromoteCmd(opts *rootOptions) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "promote <category>",
		Short: "Promote a category to each process's verbosity, or demote it with --off",
		Example: `  loglink promote rendering
  loglink promote "Data Movement" --off`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *viewer.Session) error {
				err := s.SetPromotion(ctx, c, !off)
				state := "promoted"
				if off {
					state = "demoted"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c.DisplayName(), state)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "demote the category back to TRACE")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the buffered logs of every recorder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *viewer.Session) error {
				if err := s.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logs cleared")
				return nil
			})
		},
	}
}

func (o *rootOptions) load() (cliConfig, error) {
	cfg, err := loadCLIConfig(o.configPath, o.endpoints)
	if err != nil {
		return cfg, err
	}
	if o.filter != "" {
		cfg.Filter = o.filter
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// withSession runs fn against a session on the configured endpoints. One-shot
// commands log to stderr.
func withSession(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *viewer.Session) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	cleanupLogger, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: "console",
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer cleanupLogger()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// openSession dials every endpoint and builds a session over them.
func openSession(ctx context.Context, cfg cliConfig) (*viewer.Session, error) {
	if len(cfg.endpoints) == 0 {
		return nil, errors.New("no recorder endpoints found\nIs loglinkd running? Configure endpoints.<location> or pass --endpoint")
	}
	log := logging.Component("loglink")

	recorders := make([]model.Recorder, 0, len(cfg.endpoints))
	closeAll := func() {
		for _, rec := range recorders {
			if c, ok := rec.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
	for _, ep := range cfg.endpoints {
		client, err := socketrpc.Dial(ctx, ep.Network, ep.Address)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("cannot connect to %s recorder at %s: %w", ep.Location, ep, err)
		}
		if client.Location() != ep.Location {
			client.Close()
			closeAll()
			return nil, fmt.Errorf("endpoint %s serves %s, configured as %s", ep, client.Location(), ep.Location)
		}
		log.Debug().Str("location", ep.Location.String()).Str("endpoint", ep.String()).Int("ranks", client.RankCount()).Msg("connected")
		recorders = append(recorders, client)
	}

	s, err := viewer.NewSession(ctx, recorders, viewer.WithFilter(cfg.Filter))
	if err != nil {
		closeAll()
		return nil, err
	}
	return s, nil
}

func printStatus(ctx context.Context, w io.Writer, s *viewer.Session) error {
	st, statusErr := s.Status(ctx)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return statusErr
}

func isTTYError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "TTY") || strings.Contains(msg, "/dev/tty")
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
