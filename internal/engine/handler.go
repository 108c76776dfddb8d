package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/agreements/internal/agreement"
	"github.com/roach88/agreements/internal/command"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/pool"
)

// outcomeInvalid labels commands that were logged and not answered.
const outcomeInvalid ir.Outcome = "invalid"

// handler carries the state of one mention through dispatch.
type handler struct {
	engine *Engine
	msg    ir.Message
	log    *slog.Logger
}

func (h *handler) reply(ctx context.Context, text string) {
	h.engine.emit(ctx, h.log, address(h.msg.Author.Handle, text), h.msg.ID)
}

func (h *handler) dispatch(ctx context.Context, cmd command.Command) (ir.Outcome, error) {
	switch c := cmd.(type) {
	case command.Generate:
		return h.generate(ctx, c)
	case command.Execute:
		return h.execute(ctx, c)
	case command.Send:
		return h.send(ctx, c)
	case command.Agreement:
		return h.agreement(ctx)
	case command.Vote:
		return h.vote(ctx, c)
	case command.Query:
		return h.query(ctx, c)
	case command.Invalid:
		h.log.Warn("invalid command arguments", "reason", c.Reason)
		return outcomeInvalid, nil
	default:
		return "", fmt.Errorf("unhandled command %T", cmd)
	}
}

func (h *handler) generate(ctx context.Context, c command.Generate) (ir.Outcome, error) {
	res, err := h.engine.pool.Create(ctx, pool.CreateRequest{
		ID:        h.msg.ID,
		Owner:     h.msg.Author,
		Type:      c.Type,
		Size:      c.Size,
		CreatedAt: h.msg.CreatedAt,
	})
	if err != nil {
		return "", err
	}
	h.reply(ctx, generateText(c.Type, res))
	return res.Outcome, nil
}

// execute escrows the whole budget, calls contracts in on the replied-to
// message and refunds what was not spent.
func (h *handler) execute(ctx context.Context, c command.Execute) (ir.Outcome, error) {
	target := h.msg.ReplyTo
	if target == 0 {
		h.log.Warn("execute is not a reply to a post")
		return outcomeInvalid, nil
	}
	if _, err := h.engine.gateway.FetchMessage(ctx, target); err != nil {
		return "", gatewayError(h.msg.ID, command.KeywordExecute, err)
	}

	spender := h.msg.Author.ID
	h.log.Info("new execution request", "budget", c.Budget, "target", target)

	ok, err := h.engine.ledger.Debit(ctx, spender, c.Budget)
	if err != nil {
		return "", err
	}
	if !ok {
		balance, err := h.engine.ledger.CheckBalance(ctx, spender)
		if err != nil {
			return "", err
		}
		h.reply(ctx, fmt.Sprintf("This request exceeds your balance of %d TSC.", balance))
		return ir.OutcomeInsufficientBalance, nil
	}

	res, err := h.engine.pool.AutoExecute(ctx, spender, target, c.Budget)
	if err != nil {
		if _, rerr := h.engine.ledger.ChangeBalance(ctx, spender, c.Budget); rerr != nil {
			err = errors.Join(err, fmt.Errorf("refund budget: %w", rerr))
		}
		return "", err
	}
	if refund := c.Budget - res.Spent; refund > 0 {
		if _, err := h.engine.ledger.ChangeBalance(ctx, spender, refund); err != nil {
			return "", fmt.Errorf("refund unspent budget: %w", err)
		}
	}

	for _, called := range res.Contracts {
		h.engine.emit(ctx, h.log, calledInText(called), target)
	}

	if res.Executed == 0 {
		h.reply(ctx, "Unable to execute any contracts, your account has not been charged.")
		return ir.OutcomeNothingExecuted, nil
	}
	h.reply(ctx, fmt.Sprintf("Executed %d contracts for %d TSC.", res.Executed, res.Spent))
	return ir.OutcomeOK, nil
}

func (h *handler) send(ctx context.Context, c command.Send) (ir.Outcome, error) {
	recipient, ok := agreement.Member(h.msg, h.engine.ledger.EngineID())
	if !ok {
		h.log.Warn("did not specify users to send to")
		return ir.OutcomeNoMembers, nil
	}

	// A refused send must not open the recipient's account.
	balance, err := h.engine.ledger.CheckBalance(ctx, h.msg.Author.ID)
	if err != nil {
		return "", err
	}
	if balance >= c.Amount {
		if _, _, err := h.engine.ledger.EnsureAccount(ctx, recipient); err != nil {
			return "", err
		}
		ok, err = h.engine.ledger.Transfer(ctx, h.msg.Author.ID, recipient.ID, c.Amount)
		if err != nil {
			return "", err
		}
	}
	if balance < c.Amount || !ok {
		h.log.Warn("insufficient balance to send", "amount", c.Amount)
		h.reply(ctx, "Insufficient balance to send that amount.")
		return ir.OutcomeInsufficientBalance, nil
	}

	h.reply(ctx, fmt.Sprintf("Sent %d TSC to @%s.", c.Amount, recipient.Handle))
	return ir.OutcomeOK, nil
}

func (h *handler) agreement(ctx context.Context) (ir.Outcome, error) {
	res, err := h.engine.agreements.Generate(ctx, h.msg)
	if err != nil {
		return "", err
	}
	h.reply(ctx, agreementText(res))
	return res.Outcome, nil
}

// vote records a ruling on the agreement the mention replies to. Results
// are posted under the agreement itself.
func (h *handler) vote(ctx context.Context, c command.Vote) (ir.Outcome, error) {
	id := h.msg.ReplyTo
	if id == 0 {
		h.log.Warn("ruling is not a reply to an agreement")
		return outcomeInvalid, nil
	}

	res, err := h.engine.agreements.Vote(ctx, id, h.msg.Author, c.Ruling)
	if err != nil {
		return "", err
	}

	switch res.Outcome {
	case ir.OutcomeNotFound:
		h.log.Warn("invalid agreement id, entry not found", "agreement", id)
		return res.Outcome, nil
	case ir.OutcomeUnauthorizedVoter, ir.OutcomeClosed:
		return res.Outcome, nil
	}

	switch {
	case res.Settlement != nil:
		h.engine.emit(ctx, h.log, settlementText(res.Agreement, *res.Settlement), id)
	case res.Consensus == ir.ConsensusDisputed && res.Previous != ir.ConsensusDisputed:
		h.engine.emit(ctx, h.log, disputedText, id)
	}
	return res.Outcome, nil
}

func (h *handler) query(ctx context.Context, c command.Query) (ir.Outcome, error) {
	id := h.msg.Author.ID

	var text string
	switch c.Word {
	case command.KeywordBalance:
		balance, err := h.engine.ledger.CheckBalance(ctx, id)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("You currently have %d TSC in your account.", balance)

	case command.KeywordReputation:
		rep, err := h.engine.ledger.CheckReputation(ctx, id)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("You currently have a reputation of %d.", rep)

	case command.KeywordLikes, command.KeywordRetweets:
		typ := ir.ContractLike
		if c.Word == command.KeywordRetweets {
			typ = ir.ContractRetweet
		}
		n, err := h.engine.pool.Count(ctx, id, typ)
		if err != nil {
			return "", err
		}
		text = fmt.Sprintf("You currently have %d active %s contracts.", n, typ)

	default:
		return "", fmt.Errorf("unknown query %q", c.Word)
	}

	h.reply(ctx, text)
	return ir.OutcomeOK, nil
}
