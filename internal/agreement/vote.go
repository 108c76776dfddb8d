package agreement

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/store"
)

// Settlement describes the money movement made when an agreement closed.
type Settlement struct {
	Consensus ir.Consensus
	// Amount is the collateral refunded to the creator (upheld, TSC), paid
	// to the member (broken, TSC), or the member's share of the activated
	// contract's value (broken, like/retweet).
	Amount      int64
	EngineShare int64 // Tax taken from an activated contract's value
}

// VoteResult reports what Vote did.
type VoteResult struct {
	Outcome    ir.Outcome
	Consensus  ir.Consensus
	Previous   ir.Consensus // Consensus before this ruling was recorded
	Agreement  ir.Agreement
	Settlement *Settlement // Set only on the vote that closed the agreement
}

// Vote records voter's ruling on agreement id and settles the agreement if
// both parties now agree.
//
// Only the creator and the member may vote. A ruling can be changed while
// the agreement is open. Settlement happens exactly once: the store only
// lets one caller move the agreement from open to closed, and applies the
// settlement in that same transaction.
func (s *Service) Vote(ctx context.Context, id int64, voter ir.User, ruling ir.Ruling) (VoteResult, error) {
	unlock := s.votes.Lock(id)
	defer unlock()

	a, err := s.store.GetAgreement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return VoteResult{Outcome: ir.OutcomeNotFound}, nil
	}
	if err != nil {
		return VoteResult{}, fmt.Errorf("vote: %w", err)
	}

	isCreator, isMember := a.Party(voter.ID)
	if !isCreator && !isMember {
		s.log.Warn("unauthorized voter", "agreement", id, "voter", voter.ID)
		return VoteResult{Outcome: ir.OutcomeUnauthorizedVoter, Agreement: a}, nil
	}
	if a.State == ir.AgreementClosed {
		return VoteResult{Outcome: ir.OutcomeClosed, Consensus: a.Consensus(), Agreement: a}, nil
	}

	previous := a.Consensus()
	a, updated, err := s.store.SetRuling(ctx, id, isCreator, ruling)
	if err != nil {
		return VoteResult{}, fmt.Errorf("vote: %w", err)
	}
	if !updated {
		return VoteResult{Outcome: ir.OutcomeClosed, Consensus: a.Consensus(), Agreement: a}, nil
	}

	role := "member"
	if isCreator {
		role = "creator"
	}
	s.log.Info("ruling recorded", "agreement", id, "role", role, "voter", voter.ID, "ruling", ruling)

	consensus := a.Consensus()
	res := VoteResult{Outcome: ir.OutcomeOK, Consensus: consensus, Previous: previous, Agreement: a}

	switch consensus {
	case ir.ConsensusWaiting:
		s.log.Info("have not received all rulings", "agreement", id)
		return res, nil

	case ir.ConsensusDisputed:
		s.log.Info("dispute in agreement", "agreement", id)
		return res, nil
	}

	closing, settlement, err := s.settlement(ctx, a, consensus)
	if err != nil {
		return VoteResult{}, fmt.Errorf("vote: settle agreement %d: %w", id, err)
	}

	closed, err := s.store.CloseAgreement(ctx, id, closing)
	if err != nil {
		return VoteResult{}, fmt.Errorf("vote: settle agreement %d: %w", id, err)
	}
	if !closed.Closed {
		return VoteResult{Outcome: ir.OutcomeClosed, Consensus: consensus, Agreement: a}, nil
	}
	a.State = ir.AgreementClosed
	res.Agreement = a
	s.log.Info("consensus reached", "agreement", id, "consensus", consensus)

	if closing.ActivateContract != 0 && !closed.Revived {
		s.log.Warn("collateral contract was already active", "agreement", id)
		settlement = Settlement{Consensus: consensus}
	}
	s.logSettlement(a, settlement)
	res.Settlement = &settlement
	return res, nil
}

// settlement works out what closing a with consensus moves. Nothing is
// applied until the store closes the agreement.
func (s *Service) settlement(ctx context.Context, a ir.Agreement, consensus ir.Consensus) (store.Closing, Settlement, error) {
	st := Settlement{Consensus: consensus}
	_, isContract := a.CollateralType.ContractType()

	switch {
	case consensus == ir.ConsensusUpheld && a.CollateralType == ir.CollateralCurrency:
		st.Amount = a.Collateral
		return store.Closing{Credits: []store.Credit{{AccountID: a.CreatorID, Amount: a.Collateral}}}, st, nil

	case consensus == ir.ConsensusUpheld && isContract:
		return store.Closing{RetireContract: a.ID}, st, nil

	case consensus == ir.ConsensusBroken && a.CollateralType == ir.CollateralCurrency:
		st.Amount = a.Collateral
		return store.Closing{Credits: []store.Credit{{AccountID: a.MemberID, Amount: a.Collateral}}}, st, nil

	case consensus == ir.ConsensusBroken && isContract:
		c, err := s.store.GetContract(ctx, a.ID)
		if err != nil {
			return store.Closing{}, Settlement{}, err
		}
		st.EngineShare, st.Amount = ledger.TaxSplit(c.Value(), s.pool.Config().TaxRate)
		return store.Closing{
			ActivateContract: a.ID,
			Credits: []store.Credit{
				{AccountID: s.ledger.EngineID(), Amount: st.EngineShare},
				{AccountID: a.MemberID, Amount: st.Amount},
			},
		}, st, nil
	}
	return store.Closing{}, st, nil
}

func (s *Service) logSettlement(a ir.Agreement, st Settlement) {
	_, isContract := a.CollateralType.ContractType()

	switch {
	case st.Consensus == ir.ConsensusUpheld && a.CollateralType == ir.CollateralCurrency:
		s.log.Info("collateral repaid", "agreement", a.ID, "creator", a.CreatorID, "amount", st.Amount)
	case st.Consensus == ir.ConsensusUpheld && isContract:
		s.log.Info("agreement upheld, collateral contract retired", "agreement", a.ID)
	case st.Consensus == ir.ConsensusBroken && a.CollateralType == ir.CollateralCurrency:
		s.log.Info("collateral transferred", "agreement", a.ID, "member", a.MemberID, "amount", st.Amount)
	case st.Consensus == ir.ConsensusBroken && isContract && st.Amount+st.EngineShare > 0:
		s.log.Info("collateral contract paid out", "agreement", a.ID, "member", a.MemberID, "amount", st.Amount, "tax", st.EngineShare)
	default:
		s.log.Info("no collateral to settle", "agreement", a.ID, "consensus", st.Consensus)
	}
}
