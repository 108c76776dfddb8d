package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/agreements/internal/agreement"
	"github.com/roach88/agreements/internal/engine"
	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/pool"
	"github.com/roach88/agreements/internal/store"
	"github.com/roach88/agreements/internal/testutil"
)

// Harness runs one scenario against a real engine over an in-memory
// network, with a deterministic clock and trace ids.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	gateway *gateway.Memory
	clock   *testutil.DeterministicClock
	self    ir.User
	users   map[string]ir.User
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and wire the engine
// 2. Open the setup accounts
// 3. Post each message; handle mentions and collect their replies
// 4. Evaluate assertions and dump the final ledger
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.EngineConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewDeterministicClock()
	gw := gateway.NewMemory(cfg.Engine.ID)

	welcomer := engine.NewWelcomer(gw, nil)
	welcomer.SetLogger(logger)
	l := ledger.New(st, cfg.Ledger(), ledger.WithGreeter(welcomer), ledger.WithLogger(logger))
	p := pool.New(st, l, cfg.Pool(), pool.WithClock(clock), pool.WithLogger(logger))
	svc := agreement.New(st, l, p, agreement.WithLogger(logger))

	h := &Harness{
		store:   st,
		gateway: gw,
		clock:   clock,
		self:    cfg.EngineUser(),
		users:   make(map[string]ir.User),
		engine: engine.New(st, l, p, svc, gw,
			engine.WithTraceGenerator(testutil.NewSequentialTraceGenerator()),
			engine.WithLogger(logger),
		),
	}

	ctx := context.Background()
	if _, _, err := l.EnsureAccount(ctx, h.self); err != nil {
		return nil, fmt.Errorf("failed to open engine account: %w", err)
	}
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for _, step := range scenario.Messages {
		if err := h.post(ctx, step, result); err != nil {
			return nil, fmt.Errorf("message %d: %w", step.ID, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	if result.State, err = dumpState(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to dump state: %w", err)
	}
	return result, nil
}

// setup registers identities and opens the pre-existing accounts.
// Accounts are inserted directly so no welcome is posted for them.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for _, u := range scenario.Users {
		h.users[u.Handle] = ir.User{ID: u.ID, Handle: u.Handle, Name: u.Handle, Followers: u.Followers}
	}
	for i, a := range scenario.Accounts {
		u := ir.User{ID: a.ID, Handle: a.Handle, Name: a.Handle, Followers: a.Followers}
		h.users[a.Handle] = u
		if _, err := h.store.InsertAccount(ctx, ir.Account{
			ID:         u.ID,
			Name:       u.Name,
			Handle:     u.Handle,
			Balance:    a.Balance,
			Reputation: a.Reputation,
		}); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return nil
}

// post publishes one status and, for mentions, handles it and records the
// replies it produced.
func (h *Harness) post(ctx context.Context, step MessageStep, result *Result) error {
	msg := ir.Message{
		ID:        step.ID,
		Author:    h.users[step.From],
		Text:      step.Text,
		CreatedAt: h.clock.Now(),
		ReplyTo:   step.ReplyTo,
	}
	if !step.Post {
		msg.Mentions = append(msg.Mentions, h.self)
	}
	for _, handle := range step.Mentions {
		msg.Mentions = append(msg.Mentions, h.users[handle])
	}
	h.gateway.Post(msg)

	entry := Entry{Type: EntryMention, ID: msg.ID, From: step.From, Text: msg.Text, ReplyTo: msg.ReplyTo}
	if step.Post {
		entry.Type = EntryPost
		result.Transcript = append(result.Transcript, entry)
		return nil
	}
	result.Transcript = append(result.Transcript, entry)

	before := len(h.gateway.Replies())
	if err := h.engine.Handle(ctx, msg); err != nil {
		result.AddError(fmt.Sprintf("message %d: handle failed: %v", msg.ID, err))
	}

	replies := h.gateway.Replies()[before:]
	texts := make([]string, 0, len(replies))
	for _, r := range replies {
		result.Transcript = append(result.Transcript, Entry{Type: EntryReply, Text: r.Text, ReplyTo: r.ReplyTo})
		texts = append(texts, r.Text)
	}

	if step.Expect != nil {
		for _, e := range checkExpect(step.Expect, texts) {
			result.AddError(fmt.Sprintf("message %d: %s", msg.ID, e))
		}
	}
	return nil
}

// checkExpect matches each expected substring against a distinct reply,
// in order.
func checkExpect(expect *ExpectClause, replies []string) []string {
	if expect.Silent {
		if len(replies) > 0 {
			return []string{fmt.Sprintf("expected no replies, got %q", replies)}
		}
		return nil
	}

	var errs []string
	next := 0
	for _, want := range expect.Replies {
		found := false
		for next < len(replies) {
			got := replies[next]
			next++
			if strings.Contains(got, want) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("expected a reply containing %q, got %q", want, replies))
			break
		}
	}
	return errs
}
