package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
}

// InitResult is the init command's output.
type InitResult struct {
	Database string `json:"database"`
	EngineID int64  `json:"engine_id"`
	Handle   string `json:"handle"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Initialized %s (engine account %d @%s)", r.Database, r.EngineID, r.Handle)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and the engine account",
		Long: `Create the SQLite database, apply the schema and open the engine's own
account. Running it again on an existing database is a no-op.

Example:
  agreements init --db ./agreements.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	// The engine account is never greeted, so no gateway is contacted.
	if _, err := newApp(cmd.Context(), cfg, st, gateway.NewMemory(cfg.Engine.ID), ir.SystemClock{}); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize database", err)
	}

	return opts.formatter(cmd).Success(InitResult{
		Database: cfg.Database,
		EngineID: cfg.Engine.ID,
		Handle:   cfg.Engine.Handle,
	})
}
