// Package pool is the contract pool: creation of priced like and retweet
// contracts and their greedy execution against a budget.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/lockset"
	"github.com/roach88/agreements/internal/store"
)

// Terms are the value per follower and the per-owner capacity of one
// contract type.
type Terms struct {
	Value int64
	Limit int64
}

// Config holds the immutable pool parameters.
type Config struct {
	Like    Terms
	Retweet Terms
	TaxRate float64
}

// Terms returns the terms for typ.
func (c Config) Terms(typ ir.ContractType) Terms {
	if typ == ir.ContractRetweet {
		return c.Retweet
	}
	return c.Like
}

// Pool is the sole mutator of contract state and count.
type Pool struct {
	store   *store.Store
	ledger  *ledger.Ledger
	cfg     Config
	clock   ir.Clock
	owners  lockset.Set // serializes capacity check + insert per owner
	targets lockset.Set // serializes batches on one target message
	log     *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock sets the clock used for execution timestamps.
// Default: ir.SystemClock.
func WithClock(c ir.Clock) Option {
	return func(p *Pool) {
		p.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.log = logger
	}
}

// New creates a Pool.
func New(s *store.Store, l *ledger.Ledger, cfg Config, opts ...Option) *Pool {
	p := &Pool{
		store:  s,
		ledger: l,
		cfg:    cfg,
		clock:  ir.SystemClock{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pool parameters.
func (p *Pool) Config() Config {
	return p.cfg
}

// CreateRequest describes a contract to generate.
type CreateRequest struct {
	ID        int64 // Id of the message that asked for the contract
	Owner     ir.User
	Type      ir.ContractType
	Size      int64
	CreatedAt time.Time
}

// CreateResult reports what Create did.
type CreateResult struct {
	Outcome     ir.Outcome
	Contract    ir.Contract // Zero unless Outcome.Created()
	TotalValue  int64
	EngineShare int64
	OwnerShare  int64
}

// quote validates req against the owner's capacity and prices it.
// The returned contract is alive; callers decide the final state.
func (p *Pool) quote(ctx context.Context, req CreateRequest) (CreateResult, error) {
	terms := p.cfg.Terms(req.Type)

	existing, err := p.store.SumContractCounts(ctx, req.Owner.ID, req.Type)
	if err != nil {
		return CreateResult{}, err
	}

	remaining := terms.Limit - existing
	if remaining < 1 {
		p.log.Warn("owner has exceeded contract limit", "owner", req.Owner.ID, "type", req.Type, "existing", existing)
		return CreateResult{Outcome: ir.OutcomeOversized}, nil
	}

	outcome := ir.OutcomeOK
	size := req.Size
	if size > remaining {
		p.log.Warn("new contract will exceed limit, resizing", "owner", req.Owner.ID, "requested", size, "remaining", remaining)
		size = remaining
		outcome = ir.OutcomeResized
	}

	if req.Owner.Followers <= 0 {
		return CreateResult{Outcome: ir.OutcomeNoFollowers}, nil
	}

	price := terms.Value * req.Owner.Followers
	c := ir.Contract{
		ID:          req.ID,
		State:       ir.ContractAlive,
		OwnerID:     req.Owner.ID,
		OwnerHandle: req.Owner.Handle,
		Type:        req.Type,
		Count:       size,
		Price:       price,
		CreatedAt:   req.CreatedAt,
		ExecutedOn:  []int64{},
	}
	return CreateResult{Outcome: outcome, Contract: c, TotalValue: c.Value()}, nil
}

// Create generates an alive contract and pays its value out at once: the
// engine takes its tax share and the owner the rest. The contract id joins
// the owner's contract list. The owner's account must exist.
func (p *Pool) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	unlock := p.owners.Lock(req.Owner.ID)
	defer unlock()

	res, err := p.quote(ctx, req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create contract: %w", err)
	}
	if !res.Outcome.Created() {
		return res, nil
	}

	inserted, err := p.store.InsertContract(ctx, res.Contract)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create contract: %w", err)
	}
	if !inserted {
		// Re-delivered generate message: the contract and its payout exist.
		existing, err := p.store.GetContract(ctx, req.ID)
		if err != nil {
			return CreateResult{}, fmt.Errorf("create contract: %w", err)
		}
		p.log.Warn("contract already exists", "contract", req.ID)
		return CreateResult{Outcome: res.Outcome, Contract: existing, TotalValue: existing.Value()}, nil
	}

	if err := p.store.AppendAccountContract(ctx, req.Owner.ID, res.Contract.ID); err != nil {
		return CreateResult{}, fmt.Errorf("create contract: %w", err)
	}

	res.EngineShare, res.OwnerShare, err = p.ledger.PayOut(ctx, req.Owner.ID, res.TotalValue, p.cfg.TaxRate)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create contract: %w", err)
	}

	p.log.Info("contract created",
		"contract", res.Contract.ID,
		"owner", req.Owner.ID,
		"type", req.Type,
		"count", res.Contract.Count,
		"price", res.Contract.Price,
		"total", res.TotalValue,
	)
	return res, nil
}

// CreateDormant validates and prices a collateral contract without paying
// anything out. The contract is dead from birth and is handed to commit,
// which must persist it (together with whatever owns it) before the owner's
// capacity is released. If commit fails nothing is stored.
func (p *Pool) CreateDormant(ctx context.Context, req CreateRequest, commit func(ctx context.Context, c ir.Contract) error) (CreateResult, error) {
	unlock := p.owners.Lock(req.Owner.ID)
	defer unlock()

	res, err := p.quote(ctx, req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create dormant contract: %w", err)
	}
	if !res.Outcome.Created() {
		return res, nil
	}

	res.Contract.State = ir.ContractDead
	if err := commit(ctx, res.Contract); err != nil {
		return CreateResult{}, fmt.Errorf("create dormant contract: %w", err)
	}

	p.log.Info("dormant contract created",
		"contract", res.Contract.ID,
		"owner", req.Owner.ID,
		"type", req.Type,
		"count", res.Contract.Count,
		"price", res.Contract.Price,
	)
	return res, nil
}

// Count returns how many executions of typ the owner has pledged and not
// yet delivered.
func (p *Pool) Count(ctx context.Context, owner int64, typ ir.ContractType) (int64, error) {
	n, err := p.store.SumContractCounts(ctx, owner, typ)
	if err != nil {
		return 0, fmt.Errorf("count contracts: %w", err)
	}
	return n, nil
}
