// Package ledger owns account balances and reputation.
//
// The ledger is the only component that changes a balance or a reputation.
// Every change is a single guarded store operation on one account, so two
// commands touching different accounts never wait on each other.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/store"
)

// Greeter is told about every account created for a user other than the
// engine itself. It runs after the account is committed.
type Greeter interface {
	Greet(ctx context.Context, u ir.User)
}

// Config bounds reputation and names the engine account.
type Config struct {
	Engine        ir.User
	MinReputation int64
	MaxReputation int64
}

// Ledger mediates all balance and reputation changes.
type Ledger struct {
	store   *store.Store
	cfg     Config
	greeter Greeter
	log     *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithGreeter sets the welcome hook for new accounts.
func WithGreeter(g Greeter) Option {
	return func(l *Ledger) {
		l.greeter = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.log = logger
	}
}

// New creates a Ledger over s.
func New(s *store.Store, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		store: s,
		cfg:   cfg,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EngineID returns the id of the engine's own account.
func (l *Ledger) EngineID() int64 {
	return l.cfg.Engine.ID
}

// EnsureAccount creates the account for u if it does not exist yet and
// returns the stored record. created is true only for the call that
// actually inserted it; the accounts counter moves exactly once per id.
func (l *Ledger) EnsureAccount(ctx context.Context, u ir.User) (acc ir.Account, created bool, err error) {
	created, err = l.store.InsertAccount(ctx, ir.Account{
		ID:     u.ID,
		Name:   u.Name,
		Handle: u.Handle,
	})
	if err != nil {
		return ir.Account{}, false, fmt.Errorf("ensure account %d: %w", u.ID, err)
	}

	if created {
		l.log.Info("account created", "account", u.ID, "handle", u.Handle)
		if u.ID != l.cfg.Engine.ID && l.greeter != nil {
			l.greeter.Greet(ctx, u)
		}
	}

	acc, err = l.store.GetAccount(ctx, u.ID)
	if err != nil {
		return ir.Account{}, false, fmt.Errorf("ensure account %d: %w", u.ID, err)
	}
	return acc, created, nil
}

// Account loads an account. The error wraps store.ErrNotFound for unknown ids.
func (l *Ledger) Account(ctx context.Context, id int64) (ir.Account, error) {
	return l.store.GetAccount(ctx, id)
}

// ChangeBalance adds delta to the balance without a lower bound.
// Callers that spend funds pre-check with Debit instead.
func (l *Ledger) ChangeBalance(ctx context.Context, id, delta int64) (int64, error) {
	balance, err := l.store.AdjustBalance(ctx, id, delta)
	if err != nil {
		return 0, fmt.Errorf("change balance: %w", err)
	}
	l.log.Debug("balance changed", "account", id, "delta", delta, "balance", balance)
	return balance, nil
}

// Debit removes amount if the balance covers it. The engine account is
// exempt from the check since it is the tax sink.
func (l *Ledger) Debit(ctx context.Context, id, amount int64) (bool, error) {
	if id == l.cfg.Engine.ID {
		_, err := l.ChangeBalance(ctx, id, -amount)
		return err == nil, err
	}

	ok, balance, err := l.store.Debit(ctx, id, amount)
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	if !ok {
		l.log.Info("debit refused", "account", id, "amount", amount, "balance", balance)
		return false, nil
	}
	l.log.Debug("balance debited", "account", id, "amount", amount, "balance", balance)
	return true, nil
}

// Transfer moves amount between two accounts if the sender can cover it.
func (l *Ledger) Transfer(ctx context.Context, from, to, amount int64) (bool, error) {
	ok, err := l.store.Transfer(ctx, from, to, amount)
	if err != nil {
		return false, fmt.Errorf("transfer: %w", err)
	}
	if ok {
		l.log.Info("transfer", "from", from, "to", to, "amount", amount)
	}
	return ok, nil
}

// CheckBalance returns the current balance.
func (l *Ledger) CheckBalance(ctx context.Context, id int64) (int64, error) {
	acc, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("check balance: %w", err)
	}
	return acc.Balance, nil
}

// CheckReputation returns the current reputation.
func (l *Ledger) CheckReputation(ctx context.Context, id int64) (int64, error) {
	acc, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("check reputation: %w", err)
	}
	return acc.Reputation, nil
}

// AdjustReputation adds delta and clamps the result into the configured bounds.
func (l *Ledger) AdjustReputation(ctx context.Context, id, delta int64) (int64, error) {
	rep, err := l.store.AdjustReputation(ctx, id, delta, l.cfg.MinReputation, l.cfg.MaxReputation)
	if err != nil {
		return 0, fmt.Errorf("adjust reputation: %w", err)
	}
	return rep, nil
}

// PayOut credits total split by tax: the engine receives
// ceil(total*taxRate) and the recipient the rest.
func (l *Ledger) PayOut(ctx context.Context, recipient, total int64, taxRate float64) (engineShare, recipientShare int64, err error) {
	engineShare, recipientShare = TaxSplit(total, taxRate)

	if _, err := l.ChangeBalance(ctx, l.cfg.Engine.ID, engineShare); err != nil {
		return 0, 0, fmt.Errorf("pay out: %w", err)
	}
	if _, err := l.ChangeBalance(ctx, recipient, recipientShare); err != nil {
		return 0, 0, fmt.Errorf("pay out: %w", err)
	}
	return engineShare, recipientShare, nil
}

// TaxSplit divides total into the engine's share, ceil(total*taxRate), and
// the remainder.
//
// The rate is read as the shortest decimal that prints it, so 0.1 means
// exactly one tenth and 30 at 0.1 taxes 3, not 4.
func TaxSplit(total int64, taxRate float64) (engineShare, rest int64) {
	rate, ok := new(big.Rat).SetString(strconv.FormatFloat(taxRate, 'f', -1, 64))
	if !ok || total <= 0 || rate.Sign() <= 0 {
		return 0, total
	}

	product := new(big.Rat).Mul(new(big.Rat).SetInt64(total), rate)
	num, den := product.Num(), product.Denom()

	// ceil(num/den) for positive values
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}

	engineShare = q.Int64()
	if engineShare > total {
		engineShare = total
	}
	return engineShare, total - engineShare
}
