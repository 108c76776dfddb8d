package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/agreements/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

type lookupFunc func(ctx context.Context, st *store.Store, id int64) (any, error)

// NewInspectCommand creates the inspect command and its record subcommands.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a stored record",
		Long: `Print one account, contract, agreement or execution, or the global
counters.

Examples:
  agreements inspect account 2 --db ./agreements.db
  agreements inspect execution 90 --format json
  agreements inspect stats`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	records := []struct {
		name   string
		lookup lookupFunc
	}{
		{"account", func(ctx context.Context, st *store.Store, id int64) (any, error) { return st.GetAccount(ctx, id) }},
		{"contract", func(ctx context.Context, st *store.Store, id int64) (any, error) { return st.GetContract(ctx, id) }},
		{"agreement", func(ctx context.Context, st *store.Store, id int64) (any, error) { return st.GetAgreement(ctx, id) }},
		{"execution", func(ctx context.Context, st *store.Store, id int64) (any, error) { return st.GetExecution(ctx, id) }},
	}
	for _, r := range records {
		cmd.AddCommand(newInspectRecordCommand(opts, r.name, r.lookup))
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Print the global counters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(opts, cmd, "stats", func(ctx context.Context, st *store.Store) (any, error) {
				return st.Counters(ctx)
			})
		},
	})

	return cmd
}

func newInspectRecordCommand(opts *InspectOptions, name string, lookup lookupFunc) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <id>",
		Short:         "Print the " + name + " with the given id",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", name, args[0]), err)
			}
			return inspect(opts, cmd, name, func(ctx context.Context, st *store.Store) (any, error) {
				return lookup(ctx, st, id)
			})
		},
	}
}

func inspect(opts *InspectOptions, cmd *cobra.Command, name string, get func(context.Context, *store.Store) (any, error)) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	f := opts.formatter(cmd)
	v, err := get(cmd.Context(), st)
	if errors.Is(err, store.ErrNotFound) {
		_ = f.Error("E404", name+" not found", nil)
		return NewExitError(ExitFailure, name+" not found")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read "+name, err)
	}
	return f.Success(v)
}
