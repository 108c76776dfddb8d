package ir

// Outcome is the result code of a domain operation.
//
// Outcomes are recovered locally and turned into user-facing replies. They
// are never returned as Go errors; only store and gateway failures are.
type Outcome string

const (
	// OutcomeOK indicates the operation fully succeeded.
	OutcomeOK Outcome = "ok"

	// OutcomeResized indicates a contract request was clamped to capacity.
	OutcomeResized Outcome = "resized"

	// OutcomeOversized indicates the owner has no remaining contract capacity.
	OutcomeOversized Outcome = "oversized"

	// OutcomeNoFollowers indicates the owner has zero followers, so a
	// contract has no price.
	OutcomeNoFollowers Outcome = "no_followers"

	// OutcomeNoMembers indicates an agreement names no counterparty.
	OutcomeNoMembers Outcome = "no_members"

	// OutcomeInsufficientBalance indicates a debit exceeds the balance.
	OutcomeInsufficientBalance Outcome = "insufficient_balance"

	// OutcomeContractLimited indicates contract collateral could not be
	// created for an agreement.
	OutcomeContractLimited Outcome = "contract_limited"

	// OutcomeUnauthorizedVoter indicates a ruling from neither party.
	OutcomeUnauthorizedVoter Outcome = "unauthorized_voter"

	// OutcomeNotFound indicates an unknown account, contract, agreement or
	// execution id.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeClosed indicates a ruling on an agreement that already closed.
	OutcomeClosed Outcome = "closed"

	// OutcomeNothingExecuted indicates no contract could be called in.
	OutcomeNothingExecuted Outcome = "nothing_executed"
)

// Created reports whether the outcome produced a new entity.
func (o Outcome) Created() bool {
	return o == OutcomeOK || o == OutcomeResized
}
