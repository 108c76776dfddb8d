package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/agreements/internal/agreement"
	"github.com/roach88/agreements/internal/command"
	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/pool"
	"github.com/roach88/agreements/internal/store"
)

// Engine dispatches mentions to the ledger, the contract pool and the
// agreement service, and replies through the gateway.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Handle(): safe from any goroutine, but Run is the normal caller
type Engine struct {
	store      *store.Store
	ledger     *ledger.Ledger
	pool       *pool.Pool
	agreements *agreement.Service
	gateway    gateway.Gateway
	metrics    *metrics.Collector
	traces     TraceGenerator
	seq        Sequence
	queue      *eventQueue
	log        *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMetrics records per-command and per-reply counters.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithTraceGenerator replaces the UUIDv7 trace ids.
func WithTraceGenerator(g TraceGenerator) EngineOption {
	return func(e *Engine) {
		e.traces = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = logger
	}
}

// New creates an Engine. The ledger should already carry a Welcomer for
// the same gateway so new accounts are greeted.
func New(
	s *store.Store,
	l *ledger.Ledger,
	p *pool.Pool,
	a *agreement.Service,
	gw gateway.Gateway,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:      s,
		ledger:     l,
		pool:       p,
		agreements: a,
		gateway:    gw,
		traces:     UUIDv7Generator{},
		queue:      newEventQueue(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits a mention for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(msg ir.Message) bool {
	ok := e.queue.Enqueue(msg)
	if ok && e.metrics != nil {
		e.metrics.RecordQueueDepth(e.queue.Len())
	}
	return ok
}

// QueueLen returns the current number of pending mentions.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Handled returns how many mentions have been handled since start.
func (e *Engine) Handled() int64 {
	return e.seq.Current()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called; after Stop the
// remaining queued mentions are handled before Run returns.
//
// A failed mention is logged with its id and processing continues. The
// status is already archived, so it is not retried on the next poll.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting")

	for {
		msg, ok := e.queue.TryDequeue()
		if ok {
			if e.metrics != nil {
				e.metrics.RecordQueueDepth(e.queue.Len())
			}
			if err := e.Handle(ctx, msg); err != nil {
				e.log.Error("message handling failed",
					"status", msg.ID,
					"author", msg.Author.ID,
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Drained() {
				e.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Handle processes one mention end to end.
//
// A mention whose id is already archived is skipped, which makes
// redelivery harmless.
func (e *Engine) Handle(ctx context.Context, msg ir.Message) error {
	start := time.Now()
	log := e.log.With("trace", e.traces.Generate(), "status", msg.ID)

	inserted, err := e.store.ArchiveStatus(ctx, ir.StatusOf(msg))
	if err != nil {
		return &RuntimeError{Code: ErrCodeStore, MessageID: msg.ID, Err: err}
	}
	if !inserted {
		log.Debug("status already processed")
		return nil
	}
	seq := e.seq.Next()

	if _, _, err := e.ledger.EnsureAccount(ctx, msg.Author); err != nil {
		return &RuntimeError{Code: ErrCodeStore, MessageID: msg.ID, Err: err}
	}

	cmd, ok := command.Parse(msg.Text)
	if !ok {
		log.Debug("no command in status", "seq", seq)
		return nil
	}
	log = log.With("command", cmd.Keyword(), "seq", seq)
	log.Info("handling command", "author", msg.Author.Handle)

	h := &handler{engine: e, msg: msg, log: log}
	outcome, err := h.dispatch(ctx, cmd)
	if e.metrics != nil {
		result := string(outcome)
		if err != nil {
			result = "error"
		}
		e.metrics.RecordCommand(cmd.Keyword(), result, time.Since(start))
	}
	if err != nil {
		if IsGatewayError(err) {
			return err
		}
		return &RuntimeError{Code: ErrCodeStore, MessageID: msg.ID, Command: cmd.Keyword(), Err: err}
	}

	log.Debug("command handled", "outcome", outcome)
	return nil
}

// emit salts and sends a reply. Failures are classified and dropped.
func (e *Engine) emit(ctx context.Context, log *slog.Logger, text string, replyTo int64) {
	deliver(ctx, e.gateway, e.metrics, log, text, replyTo)
}

func deliver(ctx context.Context, gw gateway.Gateway, m *metrics.Collector, log *slog.Logger, text string, replyTo int64) {
	salted := gateway.Salt(text, replyTo)
	err := gw.Emit(ctx, salted, replyTo)
	result := gateway.Classify(err)
	if m != nil {
		m.RecordReply(result)
	}

	switch result {
	case "sent":
		log.Info("reply sent", "reply_to", replyTo, "text", salted)
	case "duplicate":
		log.Warn("reply dropped: duplicate status", "reply_to", replyTo, "text", salted)
	case "cannot_reply":
		log.Warn("reply dropped: cannot reply to status", "reply_to", replyTo, "text", salted)
	default:
		log.Error("reply dropped", "reply_to", replyTo, "text", salted, "error", err)
	}
}

// Welcomer greets new accounts through the gateway.
// It implements ledger.Greeter.
type Welcomer struct {
	gateway gateway.Gateway
	metrics *metrics.Collector
	log     *slog.Logger
}

// NewWelcomer creates a Welcomer. m may be nil.
func NewWelcomer(gw gateway.Gateway, m *metrics.Collector) *Welcomer {
	return &Welcomer{gateway: gw, metrics: m, log: slog.Default()}
}

// SetLogger replaces the logger. Default: slog.Default().
func (w *Welcomer) SetLogger(logger *slog.Logger) {
	w.log = logger
}

// Greet posts the welcome message for u.
func (w *Welcomer) Greet(ctx context.Context, u ir.User) {
	w.log.Info("welcoming new account", "account", u.ID, "handle", u.Handle)
	deliver(ctx, w.gateway, w.metrics, w.log, welcomeText(u.Handle), 0)
}

var _ ledger.Greeter = (*Welcomer)(nil)

func gatewayError(msgID int64, keyword string, err error) error {
	return &RuntimeError{Code: ErrCodeGateway, MessageID: msgID, Command: keyword, Err: fmt.Errorf("fetch message: %w", err)}
}
