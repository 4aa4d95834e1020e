package matching

import "github.com/thecurioussailor/exchangecore/domain/market"

// quoteAmount converts a fill of qtyBase atomic base units at
// priceTicks into atomic quote units, per the multiply-before-divide
// rule: priceTicks * qtyBase * TickSize is computed in full before the
// division by TickDivisor so no intermediate truncation occurs.
func quoteAmount(m *market.Market, priceTicks, qtyBase int64) int64 {
	return priceTicks * qtyBase * m.TickSize / m.TickDivisor()
}

// maxQtyForQuote is the inverse operation used by a Buy Market order:
// given a remaining quote budget at a resting price, how much base
// quantity that budget can still afford. Floor division — a buyer
// never spends more than the quote it locked.
func maxQtyForQuote(m *market.Market, priceTicks, quoteBudget int64) int64 {
	denom := priceTicks * m.TickSize
	if denom <= 0 {
		return 0
	}
	return quoteBudget * m.TickDivisor() / denom
}

func averagePrice(trades []TradeFill) int64 {
	if len(trades) == 0 {
		return 0
	}
	var totalQty, totalNotional int64
	for _, t := range trades {
		totalQty += t.Quantity
		totalNotional += t.Price * t.Quantity
	}
	if totalQty == 0 {
		return 0
	}
	return totalNotional / totalQty
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
