package notification

import (
	"fmt"
	"strconv"
	"strings"

	"cryptotracker/internal/model"
)

// FormatTrendAlert renders a new trend alert with its trade levels and the
// indicator context it fired on.
func FormatTrendAlert(a model.Alert, m model.Metrics) string {
	arrow := "📈 LONG"
	if a.Trend == model.TrendBearish {
		arrow = "📉 SHORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", arrow, a.Symbol)
	fmt.Fprintf(&b, "Trend: %s → %s\n\n", orDash(string(a.PreviousTrend)), a.Trend)
	fmt.Fprintf(&b, "Entry: %s\n", fmtPrice(a.Entry))
	fmt.Fprintf(&b, "SL: %s\n", fmtPrice(a.StopLoss))
	fmt.Fprintf(&b, "TP1: %s | TP2: %s | TP3: %s\n\n", fmtPrice(a.TP1), fmtPrice(a.TP2), fmtPrice(a.TP3))
	fmt.Fprintf(&b, "RSI %.1f | ADX %.1f | entry score %.0f", m.RSI, m.ADX, m.EntryScore)
	return b.String()
}

// FormatAlertOutcome renders a result transition of a tracked alert.
func FormatAlertOutcome(a model.Alert) string {
	var outcome string
	switch a.Result {
	case model.ResultTP1:
		outcome = "✅ TP1 hit"
	case model.ResultTP2:
		outcome = "✅ TP2 hit"
	case model.ResultTP3:
		outcome = "🏆 TP3 hit, closed"
	case model.ResultSL:
		outcome = "🛑 stopped out"
	case model.ResultSLAfterTP1:
		outcome = "🛑 stopped after TP1"
	case model.ResultSLAfterTP2:
		outcome = "🛑 stopped after TP2"
	default:
		outcome = "updated"
	}
	return fmt.Sprintf("%s %s\nEntry %s | high %s | low %s",
		a.Symbol, outcome, fmtPrice(a.Entry), fmtPrice(a.HighestPrice), fmtPrice(a.LowestPrice))
}

// FormatVolumeSpike renders a volume spike notification for one bar.
func FormatVolumeSpike(sym model.Symbol, c model.Candle) string {
	direction := "🔴"
	if c.Green() {
		direction = "🟢"
	}
	ratio := 0.0
	if c.Metrics.VolumeMA15 > 0 {
		ratio = c.Volume / c.Metrics.VolumeMA15
	}
	return fmt.Sprintf("%s Volume spike %s (%s)\nvol %.0f = %.1fx avg | amplitude %.2f%% | price %s (%+.2f%%)",
		direction, sym.Symbol, c.Timeframe, c.Volume, ratio, c.Amplitude(), fmtPrice(c.Close), c.PriceChange)
}

// RSIEntry is one oversold reading in a digest.
type RSIEntry struct {
	Symbol      string
	Timeframe   model.Timeframe
	RSI         float64
	PriceChange float64
}

// FormatRSIDigest renders the periodic oversold digest. Returns "" when
// there is nothing to report.
func FormatRSIDigest(entries []RSIEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("📊 Oversold (RSI < 30)\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s: RSI %.1f (%+.2f%%)", e.Symbol, e.Timeframe, e.RSI, e.PriceChange)
	}
	return b.String()
}

// fmtPrice renders a price without artificial zero padding; crypto pairs
// span too many magnitudes for a fixed decimal count.
func fmtPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
