package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/agreements/internal/ir"
)

// Reply is one status posted through a Memory gateway.
type Reply struct {
	Text    string `json:"text"`
	ReplyTo int64  `json:"reply_to,omitempty"`
}

// Memory is an in-process network. It rejects duplicate statuses and
// replies to unknown messages the same way the real network does.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	engineID  int64
	messages  map[int64]ir.Message
	replies   []Reply
	seen      map[string]bool
	failNext  []error
	mentionsE error
}

// NewMemory creates an empty network for the engine account engineID.
func NewMemory(engineID int64) *Memory {
	return &Memory{
		engineID: engineID,
		messages: make(map[int64]ir.Message),
		seen:     make(map[string]bool),
	}
}

// Post adds a message to the network.
func (m *Memory) Post(msgs ...ir.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.messages[msg.ID] = msg
	}
}

// FailNextEmit makes the next Emit calls return errs, one per call.
func (m *Memory) FailNextEmit(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// FailMentions makes Mentions return err until called again with nil.
func (m *Memory) FailMentions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mentionsE = err
}

// Replies returns every status emitted so far, in order.
func (m *Memory) Replies() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reply, len(m.replies))
	copy(out, m.replies)
	return out
}

// FetchMessage implements Gateway.
func (m *Memory) FetchMessage(_ context.Context, id int64) (ir.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return ir.Message{}, &Error{Code: 144, Message: fmt.Sprintf("no status found with id %d", id)}
	}
	return msg, nil
}

// Mentions implements Gateway.
func (m *Memory) Mentions(_ context.Context, sinceID int64) ([]ir.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mentionsE != nil {
		return nil, m.mentionsE
	}

	var out []ir.Message
	for id, msg := range m.messages {
		if id <= sinceID || msg.Author.ID == m.engineID {
			continue
		}
		for _, u := range msg.Mentions {
			if u.ID == m.engineID {
				out = append(out, msg)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Emit implements Gateway.
func (m *Memory) Emit(_ context.Context, text string, replyTo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		if err != nil {
			return err
		}
	}
	if replyTo != 0 {
		if _, ok := m.messages[replyTo]; !ok {
			return &Error{Code: CodeCannotReply, Message: "in_reply_to_status_id does not exist"}
		}
	}
	if m.seen[text] {
		return &Error{Code: CodeDuplicate, Message: "status is a duplicate"}
	}

	m.seen[text] = true
	m.replies = append(m.replies, Reply{Text: text, ReplyTo: replyTo})
	return nil
}
