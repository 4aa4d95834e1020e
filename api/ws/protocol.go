package ws

// ClientFrame is what a subscriber sends to (un)subscribe to a
// market's feeds (spec §4.5/§6.4): {action, market_id, feeds[]}.
type ClientFrame struct {
	Action   string   `json:"action"`
	MarketID string   `json:"market_id"`
	Feeds    []string `json:"feeds"`
}

// ServerFrame is every frame the aggregator sends back: either a
// market-data delta ("event", tagged with its channel) or an
// out-of-band notice ("info", e.g. the lagging-disconnect warning).
type ServerFrame struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Message string      `json:"message,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	feedDepth  = "depth"
	feedTicker = "ticker"
	feedTrades = "trades"
)

func channelName(feed, marketID string) string {
	return feed + ":" + marketID
}
