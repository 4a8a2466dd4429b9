// Package detector runs the periodic signal passes over the candle store:
// trend-change classification, volume-spike detection and the oversold RSI
// digest. Passes read whatever is in the store; a stalled feed shows up as
// stale candle timestamps, not as a pass failure.
package detector

import (
	"context"
	"errors"
	"log"
	"time"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/model"
	"cryptotracker/internal/notification"
	"cryptotracker/internal/store/sqlite"
)

// Cooldowns is the time-boxed alert marker store. Satisfied by the Redis
// client.
type Cooldowns interface {
	MarkAlerted(ctx context.Context, class, symbol string, window time.Duration) (bool, error)
}

// Config holds the signal policy. Zero fields get the defaults below.
type Config struct {
	PrimaryTimeframe model.Timeframe // timeframe trends are classified on; defaults to 15m

	MinNormATR   float64 // ATR as % of price below which a symbol is too quiet to trade; defaults to 3
	RSIBullMax   float64 // bullish signals require RSI below this (entry on the dip); defaults to 45
	RSIBearMin   float64 // bearish signals require RSI above this; defaults to 55
	ADXThreshold float64 // minimum trend strength; defaults to 25

	VolumeSpikeFactor float64 // bar volume vs its MA; defaults to 2

	OversoldRSI float64 // digest cutoff; defaults to 30

	Cooldown time.Duration // per-symbol trend alert window; defaults to 1h
}

func (c Config) withDefaults() Config {
	if c.PrimaryTimeframe == "" {
		c.PrimaryTimeframe = model.TF15m
	}
	if c.MinNormATR == 0 {
		c.MinNormATR = 3
	}
	if c.RSIBullMax == 0 {
		c.RSIBullMax = 45
	}
	if c.RSIBearMin == 0 {
		c.RSIBearMin = 55
	}
	if c.ADXThreshold == 0 {
		c.ADXThreshold = 25
	}
	if c.VolumeSpikeFactor == 0 {
		c.VolumeSpikeFactor = 2
	}
	if c.OversoldRSI == 0 {
		c.OversoldRSI = 30
	}
	if c.Cooldown == 0 {
		c.Cooldown = time.Hour
	}
	return c
}

// Detector drives the signal passes.
type Detector struct {
	cfg       Config
	store     *sqlite.Store
	cooldowns Cooldowns
	alerts    *alerts.Manager
	notify    notification.Notifier

	// OnAlert runs after a trend alert is persisted, for publishing and
	// metrics. The context carries the alert's trace ID. Optional.
	OnAlert func(context.Context, model.Alert)
}

// New creates a detector.
func New(cfg Config, store *sqlite.Store, cooldowns Cooldowns, mgr *alerts.Manager, notify notification.Notifier) *Detector {
	return &Detector{
		cfg:       cfg.withDefaults(),
		store:     store,
		cooldowns: cooldowns,
		alerts:    mgr,
		notify:    notify,
	}
}

// EvaluateTrends runs one trend pass: classify every symbol on the primary
// timeframe, persist the new trend, and emit an alert on each qualifying
// transition. Per-symbol failures are logged and skipped.
func (d *Detector) EvaluateTrends(ctx context.Context) error {
	symbols, err := d.store.Symbols()
	if err != nil {
		return err
	}
	latest, err := d.latestBySymbol(d.cfg.PrimaryTimeframe)
	if err != nil {
		return err
	}

	higherTF := d.cfg.PrimaryTimeframe.Higher()
	for i := range symbols {
		sym := symbols[i]
		candle, ok := latest[sym.Symbol]
		if !ok {
			continue
		}

		var higher model.Metrics
		if higherTF != "" {
			hc, err := d.store.LatestCandle(sym.Symbol, higherTF)
			if err != nil && !errors.Is(err, sqlite.ErrNotFound) {
				log.Printf("[detector] %s: higher timeframe: %v", sym.Symbol, err)
				continue
			}
			higher = hc.Metrics
		}

		trend := d.classify(candle, higher)
		if trend != sym.LastTrend {
			if err := d.store.SetLastTrend(sym.Symbol, trend); err != nil {
				log.Printf("[detector] %s: set trend: %v", sym.Symbol, err)
				continue
			}
		}

		if trend == model.TrendNeutral || trend == sym.LastTrend {
			continue
		}
		d.emitTrendAlert(ctx, sym, candle, trend)
	}
	return nil
}

// classify applies the trend rule to one candle given its higher-timeframe
// confirmation metrics. A symbol whose ATR is a small fraction of its price
// is not moving enough to trade either way.
func (d *Detector) classify(c model.Candle, higher model.Metrics) model.Trend {
	m := c.Metrics
	if c.Close <= 0 || m.ATR <= 0 {
		return model.TrendNeutral
	}
	if m.ATR/c.Close*100 < d.cfg.MinNormATR {
		return model.TrendNeutral
	}
	if m.ADX <= d.cfg.ADXThreshold {
		return model.TrendNeutral
	}

	bullish := m.MACDLine > m.SignalLine &&
		m.Histogram > 0 &&
		m.Histogram > m.PrevHistogram &&
		m.RSI > 0 && m.RSI < d.cfg.RSIBullMax &&
		higher.MACDLine > higher.SignalLine
	if bullish {
		return model.TrendBullish
	}

	bearish := m.MACDLine < m.SignalLine &&
		m.Histogram < 0 &&
		m.Histogram < m.PrevHistogram &&
		m.RSI > d.cfg.RSIBearMin &&
		higher.MACDLine < higher.SignalLine
	if bearish {
		return model.TrendBearish
	}
	return model.TrendNeutral
}

func (d *Detector) emitTrendAlert(ctx context.Context, sym model.Symbol, candle model.Candle, trend model.Trend) {
	fresh, err := d.cooldowns.MarkAlerted(ctx, "trend", sym.Symbol, d.cfg.Cooldown)
	if err != nil {
		log.Printf("[detector] %s: cooldown check: %v", sym.Symbol, err)
		return
	}
	if !fresh {
		return
	}

	alert, err := d.alerts.Create(sym.Symbol, trend, sym.LastTrend, candle.Close, candle.Metrics.ATR)
	if err != nil {
		log.Printf("[detector] %s: create alert: %v", sym.Symbol, err)
		return
	}
	log.Printf("[detector] %s trend %s -> %s, alert %d", sym.Symbol, sym.LastTrend, trend, alert.ID)

	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(alert.Symbol, alert.CreatedAt))
	if d.OnAlert != nil {
		d.OnAlert(ctx, alert)
	}
	if err := d.notify.Send(ctx, notification.ChannelTrend, notification.FormatTrendAlert(alert, candle.Metrics)); err != nil {
		log.Printf("[detector] %s: notify: %v", sym.Symbol, err)
	}
}

// VolumeSpikes runs one volume-spike pass. A spike is a bar trading well
// above its own average volume with enough amplitude to matter; the
// amplitude floor loosens with volume rank, since thin symbols need a bigger
// move to be a signal and the top of the book is noisy at small amplitudes.
func (d *Detector) VolumeSpikes(ctx context.Context) error {
	symbols, err := d.store.Symbols()
	if err != nil {
		return err
	}
	latest, err := d.latestBySymbol(d.cfg.PrimaryTimeframe)
	if err != nil {
		return err
	}

	// Symbols come back ordered by 24h volume, so the index is the rank.
	for rank := range symbols {
		sym := symbols[rank]
		c, ok := latest[sym.Symbol]
		if !ok {
			continue
		}
		if c.Metrics.VolumeMA15 <= 0 || c.Volume <= d.cfg.VolumeSpikeFactor*c.Metrics.VolumeMA15 {
			continue
		}
		if c.Amplitude() < minAmplitude(rank) {
			continue
		}
		if c.TS.Equal(sym.LastVolumeAlert) {
			continue // this bar already alerted
		}

		if err := d.store.SetLastVolumeAlert(sym.Symbol, c.TS); err != nil {
			log.Printf("[detector] %s: mark volume alert: %v", sym.Symbol, err)
			continue
		}
		if err := d.notify.Send(ctx, notification.ChannelVolume, notification.FormatVolumeSpike(sym, c)); err != nil {
			log.Printf("[detector] %s: notify volume: %v", sym.Symbol, err)
		}
	}
	return nil
}

// minAmplitude is the high-low % a bar must span to count as a spike, by
// 24h volume rank.
func minAmplitude(rank int) float64 {
	switch {
	case rank < 20:
		return 1
	case rank < 50:
		return 2
	case rank < 120:
		return 3
	default:
		return 4
	}
}

// RSIDigest sends one batched oversold report across the digest timeframes.
// Nothing oversold means nothing sent.
func (d *Detector) RSIDigest(ctx context.Context) error {
	var entries []notification.RSIEntry
	for _, tf := range []model.Timeframe{model.TF15m, model.TF1h} {
		candles, err := d.store.LatestCandles(tf)
		if err != nil {
			return err
		}
		for i := range candles {
			c := candles[i]
			if c.Metrics.RSI > 0 && c.Metrics.RSI < d.cfg.OversoldRSI {
				entries = append(entries, notification.RSIEntry{
					Symbol:      c.Symbol,
					Timeframe:   tf,
					RSI:         c.Metrics.RSI,
					PriceChange: c.PriceChange,
				})
			}
		}
	}

	text := notification.FormatRSIDigest(entries)
	if text == "" {
		return nil
	}
	return d.notify.Send(ctx, notification.ChannelRSI, text)
}

func (d *Detector) latestBySymbol(tf model.Timeframe) (map[string]model.Candle, error) {
	candles, err := d.store.LatestCandles(tf)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Candle, len(candles))
	for i := range candles {
		out[candles[i].Symbol] = candles[i]
	}
	return out, nil
}
