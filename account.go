package contago

import (
	"iter"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	Deposit    TransactionKind = "deposit"
	Withdrawal TransactionKind = "withdrawal"
)

// LedgerEntry is one completed transaction. Entries are immutable; a rejected
// operation produces no entry.
type LedgerEntry struct {
	ID     snowflake.ID    `json:"id"`
	Kind   TransactionKind `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Time   time.Time       `json:"time"`
}

// History is the append-only, chronologically ordered record of an account's
// completed transactions. It is the single source of truth for the withdrawal
// count; no separate counter is kept alongside it.
type History struct {
	entries []LedgerEntry
}

func (h *History) append(e LedgerEntry) {
	h.entries = append(h.entries, e)
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) withdrawals() int {
	var n int
	for _, e := range h.entries {
		if e.Kind == Withdrawal {
			n++
		}
	}
	return n
}

var (
	DefaultBranch         = "0001"
	DefaultWithdrawLimit  = decimal.New(500, 0)
	DefaultMaxWithdrawals = 3
)

// AccountConfig carries the per-account business limits. Zero values are
// replaced with the defaults above.
type AccountConfig struct {
	Branch         string
	WithdrawLimit  decimal.Decimal
	MaxWithdrawals int
}

func (c AccountConfig) withDefaults() AccountConfig {
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.WithdrawLimit.IsZero() {
		c.WithdrawLimit = DefaultWithdrawLimit
	}
	if c.MaxWithdrawals == 0 {
		c.MaxWithdrawals = DefaultMaxWithdrawals
	}
	return c
}

// Account holds a balance and its owned History. Balance changes only through
// Deposit and Withdraw; both serialize on the account's own mutex so the
// check-then-mutate sequence stays atomic under concurrent callers.
type Account struct {
	number uint64
	branch string
	owner  *Client
	cfg    AccountConfig
	node   *snowflake.Node

	mu      sync.Mutex
	balance decimal.Decimal
	hist    History
}

func NewAccount(number uint64, owner *Client, node *snowflake.Node, cfg AccountConfig) *Account {
	cfg = cfg.withDefaults()
	return &Account{
		number: number,
		branch: cfg.Branch,
		owner:  owner,
		cfg:    cfg,
		node:   node,
	}
}

func (a *Account) Number() uint64 { return a.number }
func (a *Account) Branch() string { return a.branch }
func (a *Account) Owner() *Client { return a.owner }

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Deposit credits amount to the account and records a Deposit entry.
// Fails with ErrInvalidAmount on a non-positive amount; balance and History
// are untouched on failure.
func (a *Account) Deposit(amount decimal.Decimal) (decimal.Decimal, error) {
	bal, _, err := a.deposit(amount)
	return bal, err
}

func (a *Account) deposit(amount decimal.Decimal) (decimal.Decimal, LedgerEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !amount.IsPositive() {
		return a.balance, LedgerEntry{}, ErrInvalidAmount
	}
	a.balance = a.balance.Add(amount)
	e := LedgerEntry{
		ID:     a.node.Generate(),
		Kind:   Deposit,
		Amount: amount,
		Time:   time.Now(),
	}
	a.hist.append(e)
	return a.balance, e, nil
}

// Withdraw debits amount from the account and records a Withdrawal entry.
// Checks run in fixed precedence; the first failing check wins and no entry
// is recorded:
//  1. amount must be positive            -> ErrInvalidAmount
//  2. amount within per-withdrawal limit -> ErrLimitExceeded
//  3. withdrawal count below the cap     -> ErrWithdrawalCountExceeded
//  4. amount covered by balance          -> ErrInsufficientFunds
func (a *Account) Withdraw(amount decimal.Decimal) (decimal.Decimal, error) {
	bal, _, err := a.withdraw(amount)
	return bal, err
}

func (a *Account) withdraw(amount decimal.Decimal) (decimal.Decimal, LedgerEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !amount.IsPositive():
		return a.balance, LedgerEntry{}, ErrInvalidAmount
	case amount.GreaterThan(a.cfg.WithdrawLimit):
		return a.balance, LedgerEntry{}, ErrLimitExceeded
	case a.hist.withdrawals() >= a.cfg.MaxWithdrawals:
		return a.balance, LedgerEntry{}, ErrWithdrawalCountExceeded
	case amount.GreaterThan(a.balance):
		return a.balance, LedgerEntry{}, ErrInsufficientFunds
	}

	a.balance = a.balance.Sub(amount)
	e := LedgerEntry{
		ID:     a.node.Generate(),
		Kind:   Withdrawal,
		Amount: amount,
		Time:   time.Now(),
	}
	a.hist.append(e)
	return a.balance, e, nil
}

// revert removes entry e from the History and undoes its balance effect.
// Called when persisting a completed charge fails, so the in-memory account
// never holds a balance the repository does not. Matching by ID keeps the
// removal correct even if other charges landed in between.
func (a *Account) revert(e LedgerEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.hist.entries) - 1; i >= 0; i-- {
		if a.hist.entries[i].ID != e.ID {
			continue
		}
		a.hist.entries = append(a.hist.entries[:i], a.hist.entries[i+1:]...)
		break
	}
	switch e.Kind {
	case Deposit:
		a.balance = a.balance.Sub(e.Amount)
	case Withdrawal:
		a.balance = a.balance.Add(e.Amount)
	}
}

// Entries returns a restartable iterator over a snapshot of the account's
// History, oldest first. Mutations after the call do not show up in the
// returned sequence.
func (a *Account) Entries() iter.Seq[LedgerEntry] {
	a.mu.Lock()
	snap := make([]LedgerEntry, len(a.hist.entries))
	copy(snap, a.hist.entries)
	a.mu.Unlock()

	return func(yield func(LedgerEntry) bool) {
		for _, e := range snap {
			if !yield(e) {
				return
			}
		}
	}
}

// Statement returns the entry sequence together with the balance observed at
// the same instant, so the two cannot disagree.
func (a *Account) Statement() (iter.Seq[LedgerEntry], decimal.Decimal) {
	a.mu.Lock()
	snap := make([]LedgerEntry, len(a.hist.entries))
	copy(snap, a.hist.entries)
	bal := a.balance
	a.mu.Unlock()

	return func(yield func(LedgerEntry) bool) {
		for _, e := range snap {
			if !yield(e) {
				return
			}
		}
	}, bal
}
