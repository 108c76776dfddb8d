package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Database  string
	ID        int64
	AuthorID  int64
	Author    string
	Followers int64
	ReplyTo   int64
	Mentions  []string // "id:handle" or "id:handle:followers"
}

// InvokeResult is the invoke command's output.
type InvokeResult struct {
	Status  int64           `json:"status"`
	Replies []gateway.Reply `json:"replies"`
}

func (r InvokeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handled status %d", r.Status)
	for _, reply := range r.Replies {
		b.WriteString("\n")
		b.WriteString(formatReply(reply))
	}
	return b.String()
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <text>",
		Short: "Handle one mention built from flags",
		Long: `Handle one mention against the database and print the replies.

The engine is always the first mention. Messages in the configured inbox
are visible as reply targets, so an execute can point at an inbox post.

Example:
  agreements invoke --db ./agreements.db --id 100 --author-id 2 --author alice \
    --followers 40 "@AgreementEngine generate 5 like"
  agreements invoke --id 101 --author-id 2 --author alice --reply-to 90 \
    --mention 3:bob "@AgreementEngine @bob agreement 10 TSC I will post daily"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeMessage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "status id (required)")
	cmd.Flags().Int64Var(&opts.AuthorID, "author-id", 0, "author account id (required)")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author handle (required)")
	cmd.Flags().Int64Var(&opts.Followers, "followers", 0, "author follower count")
	cmd.Flags().Int64Var(&opts.ReplyTo, "reply-to", 0, "id of the status this one replies to")
	cmd.Flags().StringSliceVar(&opts.Mentions, "mention", nil, "additional mention as id:handle[:followers] (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("author-id")
	_ = cmd.MarkFlagRequired("author")

	return cmd
}

func invokeMessage(opts *InvokeOptions, text string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return err
	}

	mentions := []ir.User{cfg.EngineUser()}
	for _, m := range opts.Mentions {
		u, err := parseMention(m)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --mention", err)
		}
		mentions = append(mentions, u)
	}
	msg := ir.Message{
		ID:        opts.ID,
		Author:    ir.User{ID: opts.AuthorID, Handle: opts.Author, Name: opts.Author, Followers: opts.Followers},
		Text:      text,
		CreatedAt: ir.SystemClock{}.Now(),
		ReplyTo:   opts.ReplyTo,
		Mentions:  mentions,
	}

	inbox, err := gateway.LoadInbox(cfg.Inbox)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read inbox", err)
	}
	gw := gateway.NewMemory(cfg.Engine.ID)
	gw.Post(inbox.Messages...)
	gw.Post(msg)

	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(st)

	a, err := newApp(cmd.Context(), cfg, st, gw, ir.SystemClock{})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	if err := a.engine.Handle(cmd.Context(), msg); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to handle status %d", msg.ID), err)
	}

	return opts.formatter(cmd).Success(InvokeResult{Status: msg.ID, Replies: gw.Replies()})
}

// parseMention reads "id:handle" or "id:handle:followers".
func parseMention(s string) (ir.User, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
		return ir.User{}, fmt.Errorf("%q: want id:handle[:followers]", s)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ir.User{}, fmt.Errorf("%q: bad id: %w", s, err)
	}
	u := ir.User{ID: id, Handle: parts[1], Name: parts[1]}
	if len(parts) == 3 {
		if u.Followers, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return ir.User{}, fmt.Errorf("%q: bad followers: %w", s, err)
		}
	}
	return u, nil
}

func formatReply(r gateway.Reply) string {
	if r.ReplyTo == 0 {
		return "  post: " + r.Text
	}
	return fmt.Sprintf("  reply to %d: %s", r.ReplyTo, r.Text)
}
