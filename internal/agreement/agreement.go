// Package agreement implements escrow agreements between two accounts and
// the two-party ruling that settles them.
//
// An agreement is open until both parties submit the same ruling, at which
// point it closes exactly once and the collateral is settled:
//
//	collateral   upheld                     broken
//	TSC          refunded to the creator    paid to the member
//	like/retweet dormant contract zeroed    contract activated, value paid
//	                                        to the member less tax
//	none         nothing                    nothing
//
// Differing rulings leave the agreement open and disputed; either party may
// change their ruling.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/agreements/internal/command"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/lockset"
	"github.com/roach88/agreements/internal/pool"
	"github.com/roach88/agreements/internal/store"
)

// Service is the sole mutator of agreement rulings and state.
type Service struct {
	store  *store.Store
	ledger *ledger.Ledger
	pool   *pool.Pool
	votes  lockset.Set // serializes rulings per agreement
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.log = logger
	}
}

// New creates a Service.
func New(s *store.Store, l *ledger.Ledger, p *pool.Pool, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		ledger: l,
		pool:   p,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GenerateResult reports what Generate did.
type GenerateResult struct {
	Outcome   ir.Outcome
	Agreement ir.Agreement // Zero unless Outcome is OK
	Resized   bool         // Contract collateral was clamped to capacity
}

// Member picks the counterparty of an agreement or the recipient of a
// transfer: the first mentioned user who is neither the author nor the engine.
func Member(msg ir.Message, engineID int64) (ir.User, bool) {
	for _, u := range msg.Mentions {
		if u.ID != msg.Author.ID && u.ID != engineID {
			return u, true
		}
	}
	return ir.User{}, false
}

// Generate opens an agreement from msg. The agreement id is the message id.
//
// Outcomes are mutually exclusive: no_members, insufficient_balance,
// contract_limited, or ok. Apart from the creator's account, nothing is
// stored unless the outcome is ok; the member's account is only opened
// once the collateral checks pass.
func (s *Service) Generate(ctx context.Context, msg ir.Message) (GenerateResult, error) {
	req := command.Interpret(command.KindAgreement, command.KeywordAgreement, msg.Text)
	collateral := ir.CollateralType(req.Type)
	creator := msg.Author

	member, ok := Member(msg, s.ledger.EngineID())
	if !ok {
		s.log.Warn("agreement does not contain other members", "agreement", msg.ID)
		return GenerateResult{Outcome: ir.OutcomeNoMembers}, nil
	}

	if _, _, err := s.ledger.EnsureAccount(ctx, creator); err != nil {
		return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
	}

	a := ir.Agreement{
		ID:             msg.ID,
		State:          ir.AgreementOpen,
		CreatorID:      creator.ID,
		CreatorHandle:  creator.Handle,
		MemberID:       member.ID,
		MemberHandle:   member.Handle,
		CollateralType: collateral,
		Collateral:     req.Size,
		CreatedAt:      msg.CreatedAt,
		Text:           msg.Text,
	}

	switch collateral {
	case ir.CollateralCurrency:
		return s.generateEscrow(ctx, a, member)

	case ir.CollateralLike, ir.CollateralRetweet:
		return s.generateContract(ctx, a, creator, member)

	default:
		a.Collateral = 0
		if _, _, err := s.ledger.EnsureAccount(ctx, member); err != nil {
			return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
		}
		res, err := s.insert(ctx, a)
		if err == nil && res.Agreement.ID == 0 {
			return s.existing(ctx, a.ID)
		}
		return res, err
	}
}

// generateEscrow debits the collateral before the agreement is stored and
// refunds it if the store refuses the agreement.
func (s *Service) generateEscrow(ctx context.Context, a ir.Agreement, member ir.User) (GenerateResult, error) {
	ok, err := s.ledger.Debit(ctx, a.CreatorID, a.Collateral)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
	}
	if !ok {
		s.log.Warn("insufficient balance to pay agreement collateral", "agreement", a.ID, "creator", a.CreatorID, "collateral", a.Collateral)
		return GenerateResult{Outcome: ir.OutcomeInsufficientBalance}, nil
	}

	var res GenerateResult
	_, _, err = s.ledger.EnsureAccount(ctx, member)
	if err != nil {
		err = fmt.Errorf("generate agreement: %w", err)
	} else {
		res, err = s.insert(ctx, a)
	}
	if err != nil || res.Agreement.ID == 0 {
		if _, rerr := s.ledger.ChangeBalance(ctx, a.CreatorID, a.Collateral); rerr != nil {
			err = errors.Join(err, fmt.Errorf("refund collateral: %w", rerr))
		}
	}
	if err != nil {
		return GenerateResult{}, err
	}
	if res.Agreement.ID == 0 {
		// Re-delivered message: the first delivery holds the escrow.
		return s.existing(ctx, a.ID)
	}

	s.log.Info("collateral escrowed", "agreement", a.ID, "creator", a.CreatorID, "amount", a.Collateral)
	return res, nil
}

// generateContract stores the agreement with a dormant collateral contract
// in one transaction.
func (s *Service) generateContract(ctx context.Context, a ir.Agreement, creator, member ir.User) (GenerateResult, error) {
	typ, _ := a.CollateralType.ContractType()

	var created bool
	res, err := s.pool.CreateDormant(ctx, pool.CreateRequest{
		ID:        a.ID,
		Owner:     creator,
		Type:      typ,
		Size:      a.Collateral,
		CreatedAt: a.CreatedAt,
	}, func(ctx context.Context, c ir.Contract) error {
		a.Collateral = c.Count
		if _, _, err := s.ledger.EnsureAccount(ctx, member); err != nil {
			return err
		}
		var err error
		created, err = s.store.InsertAgreementWithContract(ctx, a, c)
		return err
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
	}

	if !res.Outcome.Created() {
		s.log.Warn("contract limit reached when creating agreement", "agreement", a.ID, "reason", res.Outcome)
		return GenerateResult{Outcome: ir.OutcomeContractLimited}, nil
	}
	if !created {
		return s.existing(ctx, a.ID)
	}

	s.log.Info("agreement created", "agreement", a.ID, "collateral_type", a.CollateralType, "collateral", a.Collateral)
	return GenerateResult{Outcome: ir.OutcomeOK, Agreement: a, Resized: res.Outcome == ir.OutcomeResized}, nil
}

func (s *Service) insert(ctx context.Context, a ir.Agreement) (GenerateResult, error) {
	created, err := s.store.InsertAgreement(ctx, a)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
	}
	if !created {
		return GenerateResult{Outcome: ir.OutcomeOK}, nil
	}
	s.log.Info("agreement created", "agreement", a.ID, "collateral_type", a.CollateralType, "collateral", a.Collateral)
	return GenerateResult{Outcome: ir.OutcomeOK, Agreement: a}, nil
}

func (s *Service) existing(ctx context.Context, id int64) (GenerateResult, error) {
	a, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate agreement: %w", err)
	}
	s.log.Warn("agreement already exists", "agreement", id)
	return GenerateResult{Outcome: ir.OutcomeOK, Agreement: a}, nil
}
