// Package ingest polls the messaging gateway for new mentions and hands
// them to the engine in ascending id order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/store"
)

// DefaultSchedule polls once a minute.
const DefaultSchedule = "@every 60s"

// Sink receives mentions. *engine.Engine implements it.
type Sink interface {
	Enqueue(msg ir.Message) bool
}

// ErrSinkClosed is returned when the sink stops accepting mentions
// mid-batch. The cursor is left at the last accepted mention.
var ErrSinkClosed = errors.New("sink closed")

// Poller fetches mentions newer than the stored cursor
// (meta "last_status_parsed") and forwards them to a Sink.
//
// Thread-safety: RunOnce calls are serialized; Start/Stop are safe from
// any goroutine.
type Poller struct {
	gateway  gateway.Gateway
	store    *store.Store
	sink     Sink
	metrics  *metrics.Collector
	schedule string
	log      *slog.Logger

	pollMu sync.Mutex // Serializes RunOnce

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithSchedule sets the cron spec. Default: DefaultSchedule.
func WithSchedule(spec string) Option {
	return func(p *Poller) {
		p.schedule = spec
	}
}

// WithMetrics records poll results.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Poller) {
		p.metrics = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.log = logger
	}
}

// New creates a Poller.
func New(gw gateway.Gateway, s *store.Store, sink Sink, opts ...Option) *Poller {
	p := &Poller{
		gateway:  gw,
		store:    s,
		sink:     sink,
		schedule: DefaultSchedule,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cursor returns the id of the last mention forwarded, or 0.
func (p *Poller) Cursor(ctx context.Context) (int64, error) {
	v, ok, err := p.store.GetMeta(ctx, store.MetaLastStatusParsed)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if !ok {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %q is not an id: %w", v, err)
	}
	return id, nil
}

// RunOnce performs one poll. It returns how many mentions were forwarded
// and the cursor after the poll.
//
// Mentions already archived by the engine are skipped but still advance
// the cursor.
func (p *Poller) RunOnce(ctx context.Context) (processed int, lastSeen int64, err error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	batch := uuid.NewString()
	log := p.log.With("batch", batch)

	var duplicates int
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordPoll(err, processed, duplicates)
		}
	}()

	since, err := p.Cursor(ctx)
	if err != nil {
		return 0, 0, err
	}
	lastSeen = since

	msgs, err := p.gateway.Mentions(ctx, since)
	if err != nil {
		log.Error("fetching mentions failed", "since", since, "error", err)
		return 0, since, fmt.Errorf("fetch mentions: %w", err)
	}
	if len(msgs) == 0 {
		log.Debug("no new mentions", "since", since)
		return 0, since, nil
	}
	log.Info("processing mentions", "count", len(msgs), "since", since)

	for _, msg := range msgs {
		if msg.ID <= lastSeen {
			continue
		}

		seen, err := p.store.HasStatus(ctx, msg.ID)
		if err != nil {
			return processed, lastSeen, p.advance(ctx, lastSeen, fmt.Errorf("check status: %w", err))
		}
		if seen {
			duplicates++
			log.Debug("status already processed", "status", msg.ID)
			lastSeen = msg.ID
			continue
		}

		if !p.sink.Enqueue(msg) {
			return processed, lastSeen, p.advance(ctx, lastSeen, ErrSinkClosed)
		}
		processed++
		lastSeen = msg.ID
	}

	return processed, lastSeen, p.advance(ctx, lastSeen, nil)
}

// advance stores the cursor, joining any failure with cause.
func (p *Poller) advance(ctx context.Context, lastSeen int64, cause error) error {
	if err := p.store.SetMeta(ctx, store.MetaLastStatusParsed, strconv.FormatInt(lastSeen, 10)); err != nil {
		return errors.Join(cause, fmt.Errorf("store cursor: %w", err))
	}
	return cause
}

// Start schedules RunOnce on the configured cron spec.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() {
		if _, _, err := p.RunOnce(ctx); err != nil {
			p.log.Warn("poll failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule poller %q: %w", p.schedule, err)
	}

	c.Start()
	p.cron = c
	p.running = true
	p.log.Info("poller started", "schedule", p.schedule)
	return nil
}

// Stop unschedules the poller and waits for a running poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	<-p.cron.Stop().Done()
	p.running = false
	p.log.Info("poller stopped")
}

// IsRunning returns true if the poller is scheduled.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
