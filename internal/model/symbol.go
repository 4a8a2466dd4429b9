package model

import "time"

// Trend classifies a symbol's direction at the primary timeframe.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Symbol represents a tradable base/quote pair tracked by the system.
//
// Field-level single-writer discipline: LastTrend is written only by the
// detector, LastVolumeAlert only by the volume-spike pass, Volume24h and
// LastFetched only by the symbol sync job.
type Symbol struct {
	Symbol          string    `json:"symbol"` // e.g. "BTC/USDT", unique
	BaseAsset       string    `json:"base_asset"`
	QuoteAsset      string    `json:"quote_asset"`
	Volume24h       float64   `json:"volume24"`
	LastTrend       Trend     `json:"last_trend,omitempty"` // "" until first evaluation
	LastVolumeAlert time.Time `json:"last_volume_alert,omitempty"`
	LastFetched     time.Time `json:"last_fetched,omitempty"`
}

// StreamName returns the lowercase concatenated pair name used by Binance
// stream subscriptions ("BTC/USDT" → "btcusdt").
func (s *Symbol) StreamName() string {
	out := make([]byte, 0, len(s.Symbol))
	for i := 0; i < len(s.Symbol); i++ {
		ch := s.Symbol[i]
		if ch == '/' {
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}
