package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/agreements/internal/config"
	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string // optional; a scratch database is used when empty
	Verify   bool
}

// ReplayResult holds the outcome of one replay.
type ReplayResult struct {
	Messages      int             `json:"messages"`
	Failed        int             `json:"failed"`
	Replies       []gateway.Reply `json:"replies"`
	Digest        string          `json:"digest"`
	Verified      bool            `json:"verified,omitempty"`
	Deterministic bool            `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <messages.yaml>",
		Short: "Feed a message file through the engine and print the replies",
		Long: `Feed every mention in a message file through the engine over an
in-memory network, in ascending id order, and print the replies and the
digest of the resulting ledger.

Timestamps come from the messages themselves, so the same file always
produces the same ledger. With --verify the file is replayed a second time
into a scratch database and both runs are compared.

Exit codes:
  0 - Replay finished (and was deterministic with --verify)
  1 - Messages failed or the two runs differ
  2 - Command error (file not found, invalid config, etc.)

Examples:
  agreements replay ./testdata/messages.yaml
  agreements replay --db ./agreements.db ./messages.yaml
  agreements replay --verify --format json ./messages.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "replay into this database instead of a scratch one")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "replay twice and compare ledger digests")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, "")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open message file", err)
	}
	inbox, err := gateway.ReadInbox(f)
	f.Close()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read message file", err)
	}

	scratch, err := os.MkdirTemp("", "agreements-replay-")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	db := opts.Database
	if db == "" {
		db = filepath.Join(scratch, "first.db")
	}
	result, err := replayMessages(cmd.Context(), cfg, db, inbox.Messages)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	result.Deterministic = true

	if opts.Verify {
		second, err := replayMessages(cmd.Context(), cfg, filepath.Join(scratch, "second.db"), inbox.Messages)
		if err != nil {
			return WrapExitError(ExitCommandError, "verification replay failed", err)
		}
		result.Verified = true
		// A pre-populated --db legitimately diverges from a scratch run.
		if opts.Database == "" {
			result.Deterministic = second.Digest == result.Digest && slices.Equal(second.Replies, result.Replies)
		}
		opts.formatter(cmd).Debugf("second run digest: %s", second.Digest)
	}

	if err := outputReplay(opts, cmd, result); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replays produced different ledgers")
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d messages failed", result.Failed, result.Messages))
	}
	return nil
}

// replayMessages handles msgs against the database at db.
func replayMessages(ctx context.Context, cfg config.Config, db string, msgs []ir.Message) (ReplayResult, error) {
	st, err := openStore(db)
	if err != nil {
		return ReplayResult{}, err
	}
	defer closeStore(st)

	gw := gateway.NewMemory(cfg.Engine.ID)
	gw.Post(msgs...)
	clock := &messageClock{}

	a, err := newApp(ctx, cfg, st, gw, clock)
	if err != nil {
		return ReplayResult{}, err
	}

	mentions, err := gw.Mentions(ctx, 0)
	if err != nil {
		return ReplayResult{}, err
	}

	var result ReplayResult
	for _, msg := range mentions {
		clock.set(msg.CreatedAt)
		result.Messages++
		if err := a.engine.Handle(ctx, msg); err != nil {
			result.Failed++
			slog.Error("replayed message failed", "status", msg.ID, "error", err)
		}
	}
	result.Replies = gw.Replies()

	accounts, contracts, agreements, counters, err := st.Snapshot(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	if result.Digest, err = ir.StateDigest(accounts, contracts, agreements, counters); err != nil {
		return ReplayResult{}, err
	}
	return result, nil
}

func outputReplay(opts *ReplayOptions, cmd *cobra.Command, result ReplayResult) error {
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replayed %d messages (%d failed)\n", result.Messages, result.Failed)
	for _, r := range result.Replies {
		fmt.Fprintln(out, formatReply(r))
	}
	fmt.Fprintf(out, "Digest: %s\n", result.Digest)
	if result.Verified {
		status := "deterministic"
		if !result.Deterministic {
			status = "non-deterministic"
		}
		fmt.Fprintf(out, "Verification: %s\n", status)
	}
	return nil
}

// messageClock reports the timestamp of the message being replayed.
type messageClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *messageClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *messageClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
