package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/agreements/internal/ir"
)

// Console reads from another gateway but prints replies instead of
// posting them.
type Console struct {
	source Gateway
	out    io.Writer
}

// NewConsole wraps source. Replies are written to out, one per line.
func NewConsole(source Gateway, out io.Writer) *Console {
	return &Console{source: source, out: out}
}

// FetchMessage implements Gateway.
func (c *Console) FetchMessage(ctx context.Context, id int64) (ir.Message, error) {
	return c.source.FetchMessage(ctx, id)
}

// Mentions implements Gateway.
func (c *Console) Mentions(ctx context.Context, sinceID int64) ([]ir.Message, error) {
	return c.source.Mentions(ctx, sinceID)
}

// Emit implements Gateway.
func (c *Console) Emit(_ context.Context, text string, replyTo int64) error {
	slog.Debug("reply not sent (console mode)", "reply_to", replyTo, "text", text)
	if _, err := fmt.Fprintln(c.out, text); err != nil {
		return fmt.Errorf("console emit: %w", err)
	}
	return nil
}
