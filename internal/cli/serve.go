package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/agreements/internal/api"
	"github.com/roach88/agreements/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API without running the engine",
		Long: `Serve accounts, contracts, agreements, executions and counters as JSON.
No mentions are processed.

Example:
  agreements serve --db ./agreements.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config http_addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return err
	}
	addr := cfg.HTTPAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if addr == "" {
		return NewExitError(ExitCommandError, "no listen address: set http_addr or --addr")
	}

	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	server := api.New(st, api.WithMetrics(metrics.NewCollector("")))
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return WrapExitError(ExitFailure, "api error", err)
	}
	return nil
}
