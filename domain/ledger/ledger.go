// Package ledger is the sole source of truth for per-(user,token)
// available/locked balances (spec §4.1). It is grounded on the
// lock/unlock accounting in uhyunpark-hyperlicked's AccountManager,
// generalized from a single margin-collateral asset to arbitrary
// (user, token) pairs and from panics/plain errors to typed errkind
// errors with emitted BalanceChanged events.
package ledger

import (
	"sync"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
)

type UserID string
type TokenID string

type key struct {
	user  UserID
	token TokenID
}

type Balance struct {
	Available int64
	Locked    int64
}

// Ledger partitions balances for the shard's assigned users (spec §5:
// "each shard owns disjoint (user, token) partitions"). All mutation
// methods are total on success and leave the balance untouched on
// failure (spec §4.1: "side-effect-free on failure").
type Ledger struct {
	mu       sync.Mutex
	balances map[key]*Balance
	sink     event.Sink
}

func New(sink event.Sink) *Ledger {
	return &Ledger{
		balances: make(map[key]*Balance),
		sink:     sink,
	}
}

func (l *Ledger) get(u UserID, t TokenID) *Balance {
	k := key{u, t}
	b, ok := l.balances[k]
	if !ok {
		b = &Balance{}
		l.balances[k] = b
	}
	return b
}

// Snapshot returns a copy of a user's balance for a token, creating no
// entry if one doesn't already exist (read-only query path).
func (l *Ledger) Snapshot(u UserID, t TokenID) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key{u, t}
	if b, ok := l.balances[k]; ok {
		return *b
	}
	return Balance{}
}

// Entry is one (user, token) balance row, used by the snapshot writer
// to persist the whole ledger without exposing its internal map.
type Entry struct {
	UserID  UserID
	TokenID TokenID
	Balance Balance
}

// All returns every non-empty-key balance row currently tracked.
func (l *Ledger) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.balances))
	for k, b := range l.balances {
		out = append(out, Entry{UserID: k.user, TokenID: k.token, Balance: *b})
	}
	return out
}

// Restore installs a balance row directly, bypassing event emission.
// Used only by snapshot load and WAL replay, both of which reconstruct
// state that was already durably recorded.
func (l *Ledger) Restore(u UserID, t TokenID, b Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key{u, t}] = &Balance{Available: b.Available, Locked: b.Locked}
}

func (l *Ledger) emit(u UserID, t TokenID, pre, post Balance, reason string) {
	if l.sink == nil {
		return
	}
	_ = l.sink.Append(event.BalanceChanged, event.BalanceChangedPayload{
		UserID:        string(u),
		TokenID:       string(t),
		PreAvailable:  pre.Available,
		PreLocked:     pre.Locked,
		PostAvailable: post.Available,
		PostLocked:    post.Locked,
		Reason:        reason,
	})
}

// Credit increases available balance (deposits, trade proceeds).
func (l *Ledger) Credit(u UserID, t TokenID, amount int64, reason string) error {
	if amount < 0 {
		return errkind.New(errkind.InvalidRequest, "credit amount must be >= 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(u, t)
	pre := *b
	b.Available += amount
	l.emit(u, t, pre, *b, reason)
	return nil
}

// Debit decreases available balance (withdrawals). Fails with
// InsufficientAvailable and makes no change when amount > available.
func (l *Ledger) Debit(u UserID, t TokenID, amount int64, reason string) error {
	if amount < 0 {
		return errkind.New(errkind.InvalidRequest, "debit amount must be >= 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(u, t)
	if amount > b.Available {
		return errkind.New(errkind.InsufficientAvailable, "insufficient available balance")
	}
	pre := *b
	b.Available -= amount
	l.emit(u, t, pre, *b, reason)
	return nil
}

// Lock moves amount from available to locked (order acceptance).
func (l *Ledger) Lock(u UserID, t TokenID, amount int64, reason string) error {
	if amount < 0 {
		return errkind.New(errkind.InvalidRequest, "lock amount must be >= 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(u, t)
	if amount > b.Available {
		return errkind.New(errkind.InsufficientAvailable, "insufficient available balance to lock")
	}
	pre := *b
	b.Available -= amount
	b.Locked += amount
	l.emit(u, t, pre, *b, reason)
	return nil
}

// Unlock moves amount from locked back to available (cancel, rounding
// remainder return). Fails with InsufficientLocked.
func (l *Ledger) Unlock(u UserID, t TokenID, amount int64, reason string) error {
	if amount < 0 {
		return errkind.New(errkind.InvalidRequest, "unlock amount must be >= 0")
	}
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(u, t)
	if amount > b.Locked {
		return errkind.New(errkind.InsufficientLocked, "insufficient locked balance to unlock")
	}
	pre := *b
	b.Locked -= amount
	b.Available += amount
	l.emit(u, t, pre, *b, reason)
	return nil
}

// Settle decreases locked balance: funds leave the account entirely
// on trade settlement (the taker/maker asset given up in a fill).
func (l *Ledger) Settle(u UserID, t TokenID, amount int64, reason string) error {
	if amount < 0 {
		return errkind.New(errkind.InvalidRequest, "settle amount must be >= 0")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(u, t)
	if amount > b.Locked {
		return errkind.New(errkind.InsufficientLocked, "insufficient locked balance to settle")
	}
	pre := *b
	b.Locked -= amount
	l.emit(u, t, pre, *b, reason)
	return nil
}
