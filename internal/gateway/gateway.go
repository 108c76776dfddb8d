// Package gateway is the boundary to the social network: reading mentions
// and messages, and posting replies.
//
// Adapters:
//   - File: reads an inbox YAML file and appends replies to an outbox
//   - Memory: in-process network for tests, the harness and replay
//   - Console: prints replies instead of posting them
//   - Throttled: rate limits the replies of any other gateway
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/agreements/internal/ir"
)

// Gateway is the messaging network as seen by the engine.
type Gateway interface {
	// FetchMessage returns a single message by id.
	FetchMessage(ctx context.Context, id int64) (ir.Message, error)

	// Mentions returns messages mentioning the engine with id > sinceID,
	// in ascending id order.
	Mentions(ctx context.Context, sinceID int64) ([]ir.Message, error)

	// Emit posts text, as a reply to replyTo when it is non-zero.
	Emit(ctx context.Context, text string, replyTo int64) error
}

// Network error codes recognised by the engine.
const (
	// CodeDuplicate: the network refused an identical status.
	CodeDuplicate = 187

	// CodeCannotReply: the target message is gone or replies are blocked.
	CodeCannotReply = 385
)

// Error is a failure reported by the network.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

// IsDuplicate returns true if the network rejected a duplicate status.
// Uses errors.As to handle wrapped errors.
func IsDuplicate(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == CodeDuplicate
	}
	return false
}

// IsCannotReply returns true if the reply target cannot be replied to.
// Uses errors.As to handle wrapped errors.
func IsCannotReply(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == CodeCannotReply
	}
	return false
}

// Classify names the result of an Emit for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "sent"
	case IsDuplicate(err):
		return "duplicate"
	case IsCannotReply(err):
		return "cannot_reply"
	default:
		return "error"
	}
}

// Salt appends the reply target to text. The network refuses identical
// statuses, and replies such as "Agreement is upheld." repeat often.
func Salt(text string, replyTo int64) string {
	if replyTo == 0 {
		return text
	}
	return text + " #" + strconv.FormatInt(replyTo, 10)
}
