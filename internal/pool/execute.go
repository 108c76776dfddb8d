package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/store"
)

// ExecuteResult reports what AutoExecute did.
type ExecuteResult struct {
	Executed  int
	Spent     int64
	Contracts []ir.Contract // The contracts called in, in execution order
	Execution ir.Execution  // Zero when nothing executed
}

// AutoExecute spends up to budget calling in contracts on target.
//
// Contracts are scanned oldest first and taken greedily: dead contracts,
// the spender's own contracts, and contracts whose owner already performed
// the action on target are skipped; a contract priced above the remaining
// budget is skipped without reordering. An affordable contract with no
// count left is marked dead instead of executed; the store retires a
// contract itself when its last unit is executed. The scan stops once the
// budget is exactly spent.
//
// A target is executed on at most once: once an execution record exists
// for it, later batches execute nothing so the record's promise list stays
// complete.
//
// AutoExecute never touches the spender's balance; the caller settles
// Spent with the ledger.
func (p *Pool) AutoExecute(ctx context.Context, spender, target, budget int64) (ExecuteResult, error) {
	unlock := p.targets.Lock(target)
	defer unlock()

	prior, err := p.store.GetExecution(ctx, target)
	switch {
	case err == nil:
		p.log.Info("target already executed on", "target", target, "requester", prior.RequesterID, "promises", prior.Promises)
		return ExecuteResult{}, nil
	case !errors.Is(err, store.ErrNotFound):
		return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
	}

	contracts, err := p.store.ListContracts(ctx)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
	}

	var res ExecuteResult
	remaining := budget
	promises := []int64{}

	for _, c := range contracts {
		if remaining == 0 {
			break
		}
		if c.State == ir.ContractDead || c.OwnerID == spender {
			continue
		}

		consumed, err := p.store.HasConsumed(ctx, c.OwnerID, c.Type, target)
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
		}
		if consumed || c.Price > remaining {
			continue
		}

		if c.Count == 0 {
			if _, err := p.store.KillContract(ctx, c.ID); err != nil {
				return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
			}
			p.log.Debug("exhausted contract retired", "contract", c.ID)
			continue
		}

		ok, err := p.store.ExecuteContract(ctx, c.ID, target)
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
		}
		if !ok {
			// Lost a race with a concurrent execution; the store refused.
			continue
		}

		remaining -= c.Price
		res.Executed++
		c.Count--
		if c.Count == 0 {
			c.State = ir.ContractDead
		}
		c.ExecutedOn = append(c.ExecutedOn, target)
		res.Contracts = append(res.Contracts, c)
		promises = append(promises, c.OwnerID)

		p.log.Info("contract executed",
			"contract", c.ID,
			"owner", c.OwnerID,
			"type", c.Type,
			"price", c.Price,
			"target", target,
		)
	}

	res.Spent = budget - remaining

	if res.Executed == 0 {
		p.log.Info("was not able to execute any contracts", "target", target, "budget", budget)
		return res, nil
	}

	now := p.clock.Now()
	res.Execution = ir.Execution{
		ID:          target,
		RequesterID: spender,
		Budget:      budget,
		Spent:       res.Spent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ir.ExecutionTTL),
		Promises:    promises,
	}

	created, err := p.store.InsertExecution(ctx, res.Execution)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("auto execute: %w", err)
	}
	if !created {
		// Only another process writing the same database gets here.
		p.log.Error("execution record already exists, promises not recorded",
			"target", target,
			"requester", spender,
			"promises", promises,
		)
	}

	p.log.Info("executed contracts", "target", target, "executed", res.Executed, "spent", res.Spent, "budget", budget)
	return res, nil
}
