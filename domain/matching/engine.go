package matching

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
	"github.com/thecurioussailor/exchangecore/infra/dedup"
	"github.com/thecurioussailor/exchangecore/infra/memory"
	"github.com/thecurioussailor/exchangecore/infra/sequence"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

// Engine owns one shard's orderbooks and ledger partition. It is not
// safe for concurrent use: the caller (the shard's request-bus drain
// loop) must serialize every Dispatch/Cancel/Deposit/Withdraw call
// (spec §5 — "single-writer, no suspension during the matching
// critical section").
type Engine struct {
	Shard int

	registry *market.Registry
	ledger   *ledger.Ledger
	books    map[market.MarketID]*orderbook.OrderBook
	pools    map[market.MarketID]*orderbook.Pool

	arrival  *sequence.Sequencer
	eventSeq *sequence.Sequencer

	readersMu sync.Mutex
	readers   []*memory.ReaderEpoch
	sinceGC   int

	dedup *dedup.Cache[Response]

	haltMu sync.RWMutex
	halted map[market.MarketID]string // marketID -> halt reason

	sink  event.Sink
	clock util.Clock
	log   *zap.Logger
}

func NewEngine(shard int, registry *market.Registry, l *ledger.Ledger, sink event.Sink, dedupCache *dedup.Cache[Response], clock util.Clock, log *zap.Logger) *Engine {
	return &Engine{
		Shard:    shard,
		registry: registry,
		ledger:   l,
		books:    make(map[market.MarketID]*orderbook.OrderBook),
		pools:    make(map[market.MarketID]*orderbook.Pool),
		arrival:  sequence.New(0),
		eventSeq: sequence.New(0),
		dedup:    dedupCache,
		halted:   make(map[market.MarketID]string),
		sink:     sink,
		clock:    clock,
		log:      log,
	}
}

func (e *Engine) book(id market.MarketID) *orderbook.OrderBook {
	b, ok := e.books[id]
	if !ok {
		b = orderbook.NewOrderBook()
		e.books[id] = b
	}
	return b
}

func (e *Engine) pool(id market.MarketID) *orderbook.Pool {
	p, ok := e.pools[id]
	if !ok {
		p = orderbook.NewPool()
		e.pools[id] = p
	}
	return p
}

// RegisterReader hands out a reader epoch that a goroutine reading
// this engine's orderbooks from outside the engine goroutine must
// Enter/Exit around each read; retired orders are not recycled while
// any registered reader is inside a read section.
func (e *Engine) RegisterReader() *memory.ReaderEpoch {
	e.readersMu.Lock()
	defer e.readersMu.Unlock()
	r := &memory.ReaderEpoch{}
	r.Exit() // starts inactive
	e.readers = append(e.readers, r)
	return r
}

// maybeReclaim periodically advances the epoch and recycles retired
// orders across every market's pool. Cheap, so it runs on a simple
// request counter rather than a timer.
func (e *Engine) maybeReclaim() {
	e.sinceGC++
	if e.sinceGC < 256 {
		return
	}
	e.sinceGC = 0

	e.readersMu.Lock()
	readers := append([]*memory.ReaderEpoch(nil), e.readers...)
	e.readersMu.Unlock()

	for _, p := range e.pools {
		p.Reclaim(readers...)
	}
}

func (e *Engine) isHalted(id market.MarketID) (string, bool) {
	e.haltMu.RLock()
	defer e.haltMu.RUnlock()
	reason, ok := e.halted[id]
	return reason, ok
}

// halt marks a market fatally broken and emits MarketHalted. Per spec
// §7 a halted market rejects every further request until an operator
// clears it (spec §6.5 --unhalt).
func (e *Engine) halt(id market.MarketID, reason string) {
	e.haltMu.Lock()
	e.halted[id] = reason
	e.haltMu.Unlock()

	e.log.Error("market halted", zap.String("market", string(id)), zap.String("reason", reason))
	_ = e.emit(event.MarketHalted, event.MarketHaltedPayload{
		MarketID: string(id),
		Reason:   reason,
	})
}

// Unhalt clears a market's halt state (operator intervention only) and
// durably records the clear so a restart doesn't resurrect the halt.
func (e *Engine) Unhalt(id market.MarketID) {
	e.haltMu.Lock()
	delete(e.halted, id)
	e.haltMu.Unlock()

	e.log.Info("market unhalted", zap.String("market", string(id)))
	_ = e.emit(event.MarketUnhalted, event.MarketUnhaltedPayload{MarketID: string(id)})
}

func (e *Engine) emit(kind event.Kind, payload any) error {
	if e.sink == nil {
		return nil
	}
	return e.sink.Append(kind, payload)
}

func newID() string { return uuid.NewString() }

// cacheOrReplay checks the dedup cache before doing any work, and the
// caller stores the final Response back via storeResponse. Returns
// (response, true) on a cache hit, meaning the caller must not
// re-execute the request.
func (e *Engine) cacheOrReplay(userID, requestID string) (Response, bool) {
	if e.dedup == nil || requestID == "" {
		return Response{}, false
	}
	return e.dedup.Get(userID, requestID)
}

// ResetDedup drops every cached response, for admin tooling
// (cmd/engine --reset-dedup) recovering from a poisoned cache entry.
// Not used in the normal request path.
func (e *Engine) ResetDedup() {
	if e.dedup != nil {
		e.dedup.Reset()
	}
}

func (e *Engine) storeResponse(userID, requestID string, resp Response) {
	if e.dedup == nil || requestID == "" {
		return
	}
	e.dedup.Put(userID, requestID, resp)
}

// Lookup answers a LookupRequest from the dedup cache, per spec §4.3's
// "query outside the window returns UnknownRequest" contract.
func (e *Engine) Lookup(req LookupRequest) (Response, error) {
	resp, ok := e.cacheOrReplay(req.UserID, req.RequestID)
	if !ok {
		return Response{}, errkind.New(errkind.UnknownRequest, "no cached response for request_id within dedup window")
	}
	return resp, nil
}

func kindMessage(err error) (string, string) {
	k := errkind.Of(err)
	return string(k), err.Error()
}
