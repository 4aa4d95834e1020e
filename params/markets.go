package params

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/thecurioussailor/exchangecore/domain/market"
)

// MarketSeed is one row of the static bootstrap file an engine shard
// loads at startup to populate its market.Registry. Admin status
// changes after startup go through Registry.SetMarketStatus, driven by
// an operator action, not this file.
type MarketSeed struct {
	MarketID     string `json:"market_id"`
	Symbol       string `json:"symbol"`
	BaseToken    string `json:"base_token"`
	BaseSymbol   string `json:"base_symbol"`
	BaseDecimals uint8  `json:"base_decimals"`
	QuoteToken    string `json:"quote_token"`
	QuoteSymbol   string `json:"quote_symbol"`
	QuoteDecimals uint8  `json:"quote_decimals"`
	MinOrderSize int64  `json:"min_order_size"`
	TickSize     int64  `json:"tick_size"`
}

// LoadMarkets reads a JSON array of MarketSeed rows and registers each
// token and market into a fresh registry.
func LoadMarkets(path string) (*market.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}

	var seeds []MarketSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("parse markets file: %w", err)
	}

	registry := market.NewRegistry()
	for _, s := range seeds {
		registry.RegisterToken(&market.Token{ID: market.TokenID(s.BaseToken), Symbol: s.BaseSymbol, Decimals: s.BaseDecimals, Active: true})
		registry.RegisterToken(&market.Token{ID: market.TokenID(s.QuoteToken), Symbol: s.QuoteSymbol, Decimals: s.QuoteDecimals, Active: true})

		m, err := market.New(market.MarketID(s.MarketID), s.Symbol, market.TokenID(s.BaseToken), market.TokenID(s.QuoteToken), s.BaseDecimals, s.MinOrderSize, s.TickSize)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", s.Symbol, err)
		}
		registry.RegisterMarket(m)
	}
	return registry, nil
}
