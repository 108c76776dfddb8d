package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/agreements/internal/ir"
)

// Inbox is the YAML document read by the File gateway:
//
//	messages:
//	  - id: 10
//	    author: {id: 2, handle: alice, followers: 100}
//	    text: "@AgreementEngine generate 5 like"
//	    mentions: [{id: 1, handle: AgreementEngine}]
type Inbox struct {
	Messages []ir.Message `yaml:"messages"`
}

// ReadInbox decodes an inbox document.
func ReadInbox(r io.Reader) (Inbox, error) {
	var in Inbox
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return Inbox{}, fmt.Errorf("decode inbox: %w", err)
	}
	return in, nil
}

// LoadInbox reads an inbox file. A missing file is an empty inbox.
func LoadInbox(path string) (Inbox, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Inbox{}, nil
	}
	if err != nil {
		return Inbox{}, fmt.Errorf("open inbox: %w", err)
	}
	defer f.Close()
	return ReadInbox(f)
}

// OutboxEntry is one reply line written by the File gateway.
type OutboxEntry struct {
	Text    string    `json:"text"`
	ReplyTo int64     `json:"reply_to,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// File is a file-drop network: mentions are read from an inbox YAML file
// on every poll, and replies are appended to an outbox as JSON lines.
// Other tools append to the inbox and tail the outbox.
type File struct {
	inbox  string
	engine int64
	clock  ir.Clock

	mu     sync.Mutex
	outbox io.Writer
	sent   map[string]bool
}

// NewFile creates a File gateway for the engine account engineID.
func NewFile(inbox string, engineID int64, outbox io.Writer, clock ir.Clock) *File {
	return &File{
		inbox:  inbox,
		engine: engineID,
		clock:  clock,
		outbox: outbox,
		sent:   make(map[string]bool),
	}
}

func (f *File) load() (*Memory, error) {
	in, err := LoadInbox(f.inbox)
	if err != nil {
		return nil, err
	}
	m := NewMemory(f.engine)
	m.Post(in.Messages...)
	return m, nil
}

// FetchMessage implements Gateway.
func (f *File) FetchMessage(ctx context.Context, id int64) (ir.Message, error) {
	m, err := f.load()
	if err != nil {
		return ir.Message{}, err
	}
	return m.FetchMessage(ctx, id)
}

// Mentions implements Gateway.
func (f *File) Mentions(ctx context.Context, sinceID int64) ([]ir.Message, error) {
	m, err := f.load()
	if err != nil {
		return nil, err
	}
	return m.Mentions(ctx, sinceID)
}

// Emit implements Gateway.
func (f *File) Emit(ctx context.Context, text string, replyTo int64) error {
	if replyTo != 0 {
		if _, err := f.FetchMessage(ctx, replyTo); err != nil {
			return &Error{Code: CodeCannotReply, Message: err.Error()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent[text] {
		return &Error{Code: CodeDuplicate, Message: "status is a duplicate"}
	}

	line, err := json.Marshal(OutboxEntry{Text: text, ReplyTo: replyTo, SentAt: f.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if _, err := f.outbox.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	f.sent[text] = true
	return nil
}
