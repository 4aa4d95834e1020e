// Package snapshot periodically persists an engine shard's full
// recoverable state — every market's resting orders plus every
// balance in the ledger — so startup can restore from the latest
// snapshot and replay only the entry WAL records written after it,
// instead of replaying the whole event history from seq 0. Reader is
// a thin adapter over memory.ReaderEpoch that marks when a read of the
// live orderbook begins and ends; Writer.Write does not use it, and
// the shard calls Write on its engine goroutine, between requests.
package snapshot
