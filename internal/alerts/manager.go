// Package alerts owns the trading alert lifecycle: level computation at
// creation and the periodic re-evaluation of open alerts against live price.
package alerts

import (
	"fmt"
	"log"

	"cryptotracker/internal/model"
	"cryptotracker/internal/store/sqlite"
)

// Config sets the level geometry shared by every alert.
type Config struct {
	RewardRatio   float64 // TP1 distance as a multiple of the risk; defaults to 1.0
	SLATRMultiple float64 // stop distance in ATRs; defaults to 1.5
}

// Manager creates alerts and drives their state machine.
type Manager struct {
	cfg   Config
	store *sqlite.Store
}

// New creates a manager backed by store.
func New(cfg Config, store *sqlite.Store) *Manager {
	if cfg.RewardRatio == 0 {
		cfg.RewardRatio = 1.0
	}
	if cfg.SLATRMultiple == 0 {
		cfg.SLATRMultiple = 1.5
	}
	return &Manager{cfg: cfg, store: store}
}

// Create computes trade levels from the entry price and ATR and persists a
// new open alert. The stop sits SLATRMultiple ATRs against the trend; TP1 is
// RewardRatio times that risk in favor, TP2 and TP3 one and two further ATRs
// out.
func (m *Manager) Create(symbol string, trend, previous model.Trend, entry, atr float64) (model.Alert, error) {
	if atr <= 0 {
		return model.Alert{}, fmt.Errorf("alerts: %s: non-positive ATR %v", symbol, atr)
	}

	risk := m.cfg.SLATRMultiple * atr
	a := model.Alert{
		Symbol:        symbol,
		Trend:         trend,
		PreviousTrend: previous,
		Entry:         entry,
		Status:        model.AlertOpen,
	}
	switch trend {
	case model.TrendBullish:
		a.StopLoss = entry - risk
		a.TP1 = entry + m.cfg.RewardRatio*risk
		a.TP2 = a.TP1 + atr
		a.TP3 = a.TP1 + 2*atr
	case model.TrendBearish:
		a.StopLoss = entry + risk
		a.TP1 = entry - m.cfg.RewardRatio*risk
		a.TP2 = a.TP1 - atr
		a.TP3 = a.TP1 - 2*atr
	default:
		return model.Alert{}, fmt.Errorf("alerts: %s: cannot alert on %s trend", symbol, trend)
	}

	return m.store.CreateAlert(a)
}

// Evaluate runs one re-evaluation tick over every active alert. Alerts whose
// symbol is missing from the snapshot are skipped and retried next tick.
// Returns the alerts whose result changed, for notification.
func (m *Manager) Evaluate(prices model.PriceSnapshot) ([]model.Alert, error) {
	active, err := m.store.ActiveAlerts()
	if err != nil {
		return nil, err
	}

	var changed []model.Alert
	for i := range active {
		a := active[i]
		price, ok := prices.Get(a.Symbol)
		if !ok || price <= 0 {
			continue
		}

		before := a.Result
		advance(&a, price)

		if err := m.store.UpdateAlert(a); err != nil {
			// One alert's failure never aborts the batch.
			log.Printf("[alerts] update alert %d: %v", a.ID, err)
			continue
		}
		if a.Result != before {
			changed = append(changed, a)
		}
	}
	return changed, nil
}

// advance applies one observed price to the alert state machine: update the
// running extrema, then check take-profits in descending priority before the
// stop. After TP1 the stop rises to breakeven, after TP2 to TP1, so a
// retracement books the banked level instead of the full loss.
func advance(a *model.Alert, price float64) {
	if price > a.HighestPrice {
		a.HighestPrice = price
	}
	if price < a.LowestPrice || a.LowestPrice == 0 {
		a.LowestPrice = price
	}

	bullish := a.Trend == model.TrendBullish
	favorable := a.HighestPrice
	adverse := a.LowestPrice
	if !bullish {
		favorable = a.LowestPrice
		adverse = a.HighestPrice
	}

	switch {
	case reached(bullish, favorable, a.TP3):
		a.Result = model.ResultTP3
		a.Status = model.AlertClosed
		return
	case reached(bullish, favorable, a.TP2):
		a.Result = model.ResultTP2
		a.Status = model.AlertPartial
	case reached(bullish, favorable, a.TP1):
		if a.Result < model.ResultTP1 {
			a.Result = model.ResultTP1
		}
		a.Status = model.AlertPartial
	}

	// The stop trails the banked level: breakeven after TP1, TP1 after TP2.
	// The original stop is checked against the running extremum; a trailed
	// stop only against the current price, since the extremum may predate
	// the TP that moved it.
	switch a.Result {
	case model.ResultTP2:
		if reached(!bullish, price, a.TP1) {
			a.Result = model.ResultSLAfterTP2
			a.Status = model.AlertClosed
		}
	case model.ResultTP1:
		if reached(!bullish, price, a.Entry) {
			a.Result = model.ResultSLAfterTP1
			a.Status = model.AlertClosed
		}
	default:
		if reached(!bullish, adverse, a.StopLoss) {
			a.Result = model.ResultSL
			a.Status = model.AlertClosed
		}
	}
}

// reached reports whether extremum has crossed level in the favorable
// direction for up (true = upward cross).
func reached(up bool, extremum, level float64) bool {
	if up {
		return extremum >= level
	}
	return extremum <= level
}
