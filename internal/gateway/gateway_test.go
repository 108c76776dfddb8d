package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
)

var (
	engine = ir.User{ID: 1, Handle: "AgreementEngine"}
	alice  = ir.User{ID: 2, Handle: "alice"}
)

func TestErrorHelpers(t *testing.T) {
	dup := fmt.Errorf("emit: %w", &Error{Code: CodeDuplicate, Message: "dup"})
	gone := &Error{Code: CodeCannotReply, Message: "gone"}

	assert.True(t, IsDuplicate(dup))
	assert.False(t, IsCannotReply(dup))
	assert.True(t, IsCannotReply(gone))
	assert.False(t, IsDuplicate(errors.New("boom")))

	assert.Equal(t, "sent", Classify(nil))
	assert.Equal(t, "duplicate", Classify(dup))
	assert.Equal(t, "cannot_reply", Classify(gone))
	assert.Equal(t, "error", Classify(errors.New("boom")))
}

func TestSalt(t *testing.T) {
	assert.Equal(t, "Agreement is upheld. #42", Salt("Agreement is upheld.", 42))
	assert.Equal(t, "hello", Salt("hello", 0))
}

func TestMemory_MentionsAscendingAfterSince(t *testing.T) {
	m := NewMemory(engine.ID)
	m.Post(
		ir.Message{ID: 30, Author: alice, Mentions: []ir.User{engine}},
		ir.Message{ID: 10, Author: alice, Mentions: []ir.User{engine}},
		ir.Message{ID: 20, Author: alice},                               // does not mention the engine
		ir.Message{ID: 40, Author: engine, Mentions: []ir.User{engine}}, // the engine's own post
		ir.Message{ID: 25, Author: alice, Mentions: []ir.User{engine}},
	)

	got, err := m.Mentions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(25), got[0].ID)
	assert.Equal(t, int64(30), got[1].ID)
}

func TestMemory_EmitErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(engine.ID)
	m.Post(ir.Message{ID: 10, Author: alice})

	require.NoError(t, m.Emit(ctx, "hi #10", 10))
	assert.True(t, IsDuplicate(m.Emit(ctx, "hi #10", 10)))
	assert.True(t, IsCannotReply(m.Emit(ctx, "hi #99", 99)))

	boom := errors.New("boom")
	m.FailNextEmit(boom)
	assert.ErrorIs(t, m.Emit(ctx, "other", 10), boom)
	require.NoError(t, m.Emit(ctx, "other", 10))

	assert.Equal(t, []Reply{{Text: "hi #10", ReplyTo: 10}, {Text: "other", ReplyTo: 10}}, m.Replies())
}

func TestMemory_FetchMessage(t *testing.T) {
	m := NewMemory(engine.ID)
	m.Post(ir.Message{ID: 10, Author: alice, Text: "x"})

	msg, err := m.FetchMessage(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "x", msg.Text)

	_, err = m.FetchMessage(context.Background(), 11)
	assert.Error(t, err)
}

func TestConsole_PrintsInsteadOfPosting(t *testing.T) {
	mem := NewMemory(engine.ID)
	var out bytes.Buffer
	c := NewConsole(mem, &out)

	require.NoError(t, c.Emit(context.Background(), "hello #5", 5))
	assert.Equal(t, "hello #5\n", out.String())
	assert.Empty(t, mem.Replies())
}

func TestThrottled_WaitsBetweenReplies(t *testing.T) {
	mem := NewMemory(engine.ID)
	th := NewThrottled(mem, 20, 1) // one reply per 50ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Emit(context.Background(), fmt.Sprintf("r%d", i), 0))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Len(t, mem.Replies(), 3)
}

func TestThrottled_CancelledContext(t *testing.T) {
	th := NewThrottled(NewMemory(engine.ID), 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, th.Emit(ctx, "first", 0))
	cancel()
	assert.Error(t, th.Emit(ctx, "second", 0))
}
