package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
)

// recordingSink captures every emitted event so tests can assert on
// BalanceChanged payloads without standing up a real WAL.
type recordingSink struct {
	kinds    []event.Kind
	payloads []any
}

func (s *recordingSink) Append(kind event.Kind, payload any) error {
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, payload)
	return nil
}

const (
	alice = ledger.UserID("alice")
	usdc  = ledger.TokenID("USDC")
	btc   = ledger.TokenID("BTC")
)

func TestCreditIncreasesAvailable(t *testing.T) {
	sink := &recordingSink{}
	l := ledger.New(sink)

	require.NoError(t, l.Credit(alice, usdc, 1000, "deposit:1"))
	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(1000), bal.Available)
	require.Equal(t, int64(0), bal.Locked)
	require.Len(t, sink.kinds, 1)
	require.Equal(t, event.BalanceChanged, sink.kinds[0])
}

func TestDebitRejectsInsufficientAvailable(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 100, "deposit:1"))

	err := l.Debit(alice, usdc, 500, "withdraw:1")
	require.Error(t, err)
	require.Equal(t, errkind.InsufficientAvailable, errkind.Of(err))

	// failed debit must leave the balance untouched
	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(100), bal.Available)
}

func TestLockMovesAvailableToLocked(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 500, "deposit:1"))
	require.NoError(t, l.Lock(alice, usdc, 300, "order_lock:o1"))

	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(200), bal.Available)
	require.Equal(t, int64(300), bal.Locked)
}

func TestLockRejectsOverAvailable(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 100, "deposit:1"))

	err := l.Lock(alice, usdc, 200, "order_lock:o1")
	require.Error(t, err)
	require.Equal(t, errkind.InsufficientAvailable, errkind.Of(err))

	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(100), bal.Available)
	require.Equal(t, int64(0), bal.Locked)
}

func TestUnlockReturnsFundsToAvailable(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 500, "deposit:1"))
	require.NoError(t, l.Lock(alice, usdc, 300, "order_lock:o1"))
	require.NoError(t, l.Unlock(alice, usdc, 300, "cancel:o1"))

	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(500), bal.Available)
	require.Equal(t, int64(0), bal.Locked)
}

func TestUnlockRejectsOverLocked(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 500, "deposit:1"))
	require.NoError(t, l.Lock(alice, usdc, 100, "order_lock:o1"))

	err := l.Unlock(alice, usdc, 200, "cancel:o1")
	require.Error(t, err)
	require.Equal(t, errkind.InsufficientLocked, errkind.Of(err))
}

func TestUnlockZeroIsNoop(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Unlock(alice, usdc, 0, "noop"))
	bal := l.Snapshot(alice, usdc)
	require.Equal(t, ledger.Balance{}, bal)
}

// TestSettleDecreasesLockedOnly verifies settlement removes funds from
// the account entirely rather than returning them to available — the
// credit side of a trade is a separate Credit call on the other asset.
func TestSettleDecreasesLockedOnly(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, btc, 10, "deposit:1"))
	require.NoError(t, l.Lock(alice, btc, 10, "order_lock:o1"))

	require.NoError(t, l.Settle(alice, btc, 4, "trade_settle:t1"))
	bal := l.Snapshot(alice, btc)
	require.Equal(t, int64(0), bal.Available)
	require.Equal(t, int64(6), bal.Locked)
}

func TestSettleRejectsOverLocked(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, btc, 10, "deposit:1"))
	require.NoError(t, l.Lock(alice, btc, 5, "order_lock:o1"))

	err := l.Settle(alice, btc, 6, "trade_settle:t1")
	require.Error(t, err)
	require.Equal(t, errkind.InsufficientLocked, errkind.Of(err))
}

// TestLockUnlockSettleRoundTrip exercises the full order lifecycle a
// limit order goes through: lock on acceptance, partial settle on
// fill, unlock of the unfilled remainder on cancel.
func TestLockUnlockSettleRoundTrip(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 1000, "deposit:1"))
	require.NoError(t, l.Lock(alice, usdc, 1000, "order_lock:o1"))

	require.NoError(t, l.Settle(alice, usdc, 400, "trade_settle:t1"))
	require.NoError(t, l.Unlock(alice, usdc, 600, "cancel:o1"))

	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(600), bal.Available)
	require.Equal(t, int64(0), bal.Locked)
}

func TestSnapshotOfUnknownKeyIsZeroValue(t *testing.T) {
	l := ledger.New(nil)
	bal := l.Snapshot(ledger.UserID("nobody"), usdc)
	require.Equal(t, ledger.Balance{}, bal)
}

func TestRestoreInstallsBalanceWithoutEmitting(t *testing.T) {
	sink := &recordingSink{}
	l := ledger.New(sink)
	l.Restore(alice, usdc, ledger.Balance{Available: 50, Locked: 25})

	bal := l.Snapshot(alice, usdc)
	require.Equal(t, int64(50), bal.Available)
	require.Equal(t, int64(25), bal.Locked)
	require.Empty(t, sink.kinds, "Restore must not emit BalanceChanged")
}

func TestAllReturnsEveryTrackedBalance(t *testing.T) {
	l := ledger.New(nil)
	require.NoError(t, l.Credit(alice, usdc, 100, "deposit:1"))
	require.NoError(t, l.Credit(alice, btc, 5, "deposit:2"))

	entries := l.All()
	require.Len(t, entries, 2)
}

func TestNegativeAmountsRejected(t *testing.T) {
	l := ledger.New(nil)
	require.Equal(t, errkind.InvalidRequest, errkind.Of(l.Credit(alice, usdc, -1, "x")))
	require.Equal(t, errkind.InvalidRequest, errkind.Of(l.Debit(alice, usdc, -1, "x")))
	require.Equal(t, errkind.InvalidRequest, errkind.Of(l.Lock(alice, usdc, -1, "x")))
	require.Equal(t, errkind.InvalidRequest, errkind.Of(l.Unlock(alice, usdc, -1, "x")))
	require.Equal(t, errkind.InvalidRequest, errkind.Of(l.Settle(alice, usdc, -1, "x")))
}
