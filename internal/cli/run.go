package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/agreements/internal/api"
	"github.com/roach88/agreements/internal/config"
	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ingest"
	"github.com/roach88/agreements/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine, the mention poller and the read API",
		Long: `Start the Agreement Engine.

Mentions are read from the configured inbox on the poll schedule (and once
at startup), handled one at a time by the single-writer event loop, and
replies are appended to the outbox. The read API is served on http_addr
unless it is empty.

Example:
  agreements run --config ./agreements.yaml
  AGREEMENTS_SEND_REPLIES=false agreements run --db /tmp/test.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	gw, closeOutbox, err := openGateway(cfg, cmd.OutOrStdout())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open outbox", err)
	}
	defer func() {
		if err := closeOutbox(); err != nil {
			slog.Error("error closing outbox", "error", err)
		}
	}()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, st, gw, ir.SystemClock{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	poller := ingest.New(gw, st, a.engine,
		ingest.WithSchedule(cfg.PollSchedule),
		ingest.WithMetrics(a.metrics),
	)

	slog.Info("engine starting", "db", cfg.Database, "inbox", cfg.Inbox, "schedule", cfg.PollSchedule)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Polling for mentions...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, _, err := poller.RunOnce(gctx); err != nil {
			slog.Warn("initial poll failed", "error", err)
		}
		if err := poller.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		poller.Stop()
		return nil
	})
	if cfg.HTTPAddr != "" {
		server := api.New(st, api.WithMetrics(a.metrics))
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.HTTPAddr)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully", "handled", a.engine.Handled())
	return nil
}

// openGateway builds the file network from cfg. Replies go to the outbox
// file, or to stdout when no outbox is configured. With replies.send off
// they are only printed.
func openGateway(cfg config.Config, stdout io.Writer) (gateway.Gateway, func() error, error) {
	out := stdout
	closer := func() error { return nil }
	if cfg.Outbox != "" {
		f, err := os.OpenFile(cfg.Outbox, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f.Close
	}

	var gw gateway.Gateway = gateway.NewFile(cfg.Inbox, cfg.Engine.ID, out, ir.SystemClock{})
	if !cfg.Replies.Send {
		return gateway.NewConsole(gw, stdout), closer, nil
	}
	return gateway.NewThrottled(gw, cfg.Replies.PerSecond, cfg.Replies.Burst), closer, nil
}

// signalContext is cancelled on SIGINT or SIGTERM, or when parent is.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
