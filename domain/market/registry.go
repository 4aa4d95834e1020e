package market

import (
	"sync"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
)

// Registry is the shard-local, thread-safe set of markets (and the
// tokens they reference) an engine instance owns or can read.
type Registry struct {
	mu      sync.RWMutex
	markets map[MarketID]*Market
	tokens  map[TokenID]*Token
}

func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[MarketID]*Market),
		tokens:  make(map[TokenID]*Token),
	}
}

func (r *Registry) RegisterToken(t *Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.ID] = t
}

func (r *Registry) RegisterMarket(m *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[m.ID] = m
}

func (r *Registry) Token(id TokenID) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	return t, ok
}

func (r *Registry) Market(id MarketID) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, errkind.New(errkind.UnknownMarket, "unknown market: "+string(id))
	}
	return m, nil
}

func (r *Registry) ActiveMarket(id MarketID) (*Market, error) {
	m, err := r.Market(id)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, errkind.New(errkind.MarketInactive, "market inactive: "+string(id))
	}
	return m, nil
}

// SetMarketStatus applies an admin status transition (market
// activation/deactivation), per DESIGN NOTES §4: registries are
// "refreshed via admin events".
func (r *Registry) SetMarketStatus(id MarketID, status MarketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markets[id]
	if !ok {
		return errkind.New(errkind.UnknownMarket, "unknown market: "+string(id))
	}
	m.Status = status
	return nil
}

func (r *Registry) ListMarkets() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}
