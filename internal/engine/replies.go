package engine

import (
	"fmt"

	"github.com/roach88/agreements/internal/agreement"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/pool"
)

func address(handle, text string) string {
	return "@" + handle + " " + text
}

func welcomeText(handle string) string {
	return fmt.Sprintf("@%s Welcome to Agreement Engine! Check out https://agreements.metagov.org/about and https://agreements.metagov.org/help to learn about agreements and how to make them!", handle)
}

func generateText(typ ir.ContractType, res pool.CreateResult) string {
	switch res.Outcome {
	case ir.OutcomeOversized:
		return "You have reached your contract limit and cannot generate new ones until they have been used up."
	case ir.OutcomeNoFollowers:
		return "Your account has 0 followers, so contracts cannot be generated."
	case ir.OutcomeResized:
		return fmt.Sprintf("Your request exceeded your %s contract limit so it was resized. Your account has been credited %d TSC for this %d %s contract.",
			typ, res.OwnerShare, res.Contract.Count, typ)
	default:
		return fmt.Sprintf("Successfully generated! Your account has been credited %d TSC for this %d %s contract.",
			res.OwnerShare, res.Contract.Count, typ)
	}
}

func calledInText(c ir.Contract) string {
	return fmt.Sprintf("@%s Your contract has been called in, please %s the above post!", c.OwnerHandle, c.Type)
}

func agreementText(res agreement.GenerateResult) string {
	switch res.Outcome {
	case ir.OutcomeNoMembers:
		return "Agreements must contain another member."
	case ir.OutcomeInsufficientBalance:
		return "This agreement could not be created because you have exceeded your balance."
	case ir.OutcomeContractLimited:
		return "This agreement could not be created because you have reached your contract limit."
	}

	a := res.Agreement
	switch a.CollateralType {
	case ir.CollateralCurrency:
		return fmt.Sprintf("Your agreement staking %d TSC has been created!", a.Collateral)
	case ir.CollateralNone:
		return "Your unenforced agreement has been created!"
	default:
		return fmt.Sprintf("Your agreement staking %d %ss has been created!", a.Collateral, a.CollateralType)
	}
}

// settlementText describes a closed agreement's settlement.
func settlementText(a ir.Agreement, st agreement.Settlement) string {
	switch st.Consensus {
	case ir.ConsensusUpheld:
		switch a.CollateralType {
		case ir.CollateralCurrency:
			return fmt.Sprintf("Agreement is upheld, %d TSC has been repaid to @%s.", st.Amount, a.CreatorHandle)
		case ir.CollateralLike, ir.CollateralRetweet:
			return "Agreement is upheld, no contracts will be generated."
		default:
			return "Agreement is upheld."
		}

	default:
		switch a.CollateralType {
		case ir.CollateralCurrency:
			return fmt.Sprintf("Agreement is broken, %d TSC has been paid to @%s.", st.Amount, a.MemberHandle)
		case ir.CollateralLike, ir.CollateralRetweet:
			return fmt.Sprintf("Agreement is broken, @%s's contract was generated and %d TSC has been paid to @%s.",
				a.CreatorHandle, st.Amount, a.MemberHandle)
		default:
			return "Agreement is broken."
		}
	}
}

const disputedText = "Agreement outcome is disputed. No action will be taken, users can change their ruling to come to a consensus."
