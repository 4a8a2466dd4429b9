// Package ingest turns raw kline events into stored candles with a full
// indicator snapshot. Events are routed to a fixed worker pool by a hash of
// (symbol, timeframe), so writes for the same series are always serialized
// while distinct series proceed in parallel.
package ingest

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"cryptotracker/internal/indicator"
	"cryptotracker/internal/model"
	"cryptotracker/internal/store/sqlite"
)

const (
	// seedWindow is the number of prior candles loaded before recomputing
	// indicators for a bar. 50 covers the longest lookback in use (EMA50)
	// plus the warmup the smoothed indicators need.
	seedWindow = 50

	atrPeriod = 14
	rsiPeriod = 14
	adxPeriod = 14

	// untrackedLogEvery throttles the drop log per symbol. A pruned symbol
	// keeps streaming until its connection is rebuilt, so logging every
	// event would flood.
	untrackedLogEvery = time.Minute
)

// Config configures the pipeline.
type Config struct {
	Workers   int // worker goroutines; defaults to 8
	QueueSize int // per-worker queue depth; defaults to 256
}

// Pipeline consumes kline events and maintains the candle store.
type Pipeline struct {
	cfg   Config
	store *sqlite.Store

	mu    sync.RWMutex
	known map[string]struct{} // tracked symbols in pair form

	dropMu      sync.Mutex
	lastDropLog map[string]time.Time // untracked symbol → last log time

	queues []chan model.KlineEvent

	// Optional metrics hooks.
	OnUpsert func(tf model.Timeframe)
	OnDrop   func()
}

// New creates a pipeline writing to store.
func New(cfg Config, store *sqlite.Store) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	queues := make([]chan model.KlineEvent, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan model.KlineEvent, cfg.QueueSize)
	}

	return &Pipeline{
		cfg:         cfg,
		store:       store,
		known:       make(map[string]struct{}),
		lastDropLog: make(map[string]time.Time),
		queues:      queues,
	}
}

// SetSymbols replaces the tracked symbol set. Events for symbols outside the
// set are dropped; the sync job calls this after each listing refresh.
func (p *Pipeline) SetSymbols(symbols []model.Symbol) {
	known := make(map[string]struct{}, len(symbols))
	for i := range symbols {
		known[symbols[i].Symbol] = struct{}{}
	}
	p.mu.Lock()
	p.known = known
	p.mu.Unlock()
}

// Run starts the worker pool and dispatches events from in until ctx is
// cancelled and in drains.
func (p *Pipeline) Run(ctx context.Context, in <-chan model.KlineEvent) {
	var wg sync.WaitGroup
	for i, q := range p.queues {
		wg.Add(1)
		go func(id int, q chan model.KlineEvent) {
			defer wg.Done()
			p.worker(q)
		}(i, q)
	}

	for {
		select {
		case <-ctx.Done():
			for _, q := range p.queues {
				close(q)
			}
			wg.Wait()
			return
		case event, ok := <-in:
			if !ok {
				for _, q := range p.queues {
					close(q)
				}
				wg.Wait()
				return
			}
			p.dispatch(event)
		}
	}
}

// dispatch routes an event to its worker. Same key always hits the same
// worker, which is the whole serialization story: no row-level locking.
func (p *Pipeline) dispatch(event model.KlineEvent) {
	h := fnv.New32a()
	h.Write([]byte(event.Key()))
	q := p.queues[int(h.Sum32())%len(p.queues)]

	select {
	case q <- event:
	default:
		log.Printf("[ingest] worker queue full, dropping %s %s", event.Symbol, event.Timeframe)
		if p.OnDrop != nil {
			p.OnDrop()
		}
	}
}

func (p *Pipeline) worker(q <-chan model.KlineEvent) {
	for event := range q {
		if err := p.Process(event); err != nil {
			// One symbol's failure never stops the rest of the feed.
			log.Printf("[ingest] process %s %s: %v", event.Symbol, event.Timeframe, err)
		}
	}
}

// Process stores one kline event as a candle with a freshly computed
// indicator snapshot. Exported for the backfill CLI, which feeds REST
// history through the same path as live stream events.
func (p *Pipeline) Process(event model.KlineEvent) error {
	p.mu.RLock()
	_, tracked := p.known[event.Symbol]
	p.mu.RUnlock()
	if !tracked {
		p.logUntracked(event.Symbol)
		return nil
	}

	window, err := p.store.RecentBefore(event.Symbol, event.Timeframe, event.OpenTime, seedWindow)
	if err != nil {
		return err
	}

	candle := buildCandle(event, window)
	if _, err := p.store.UpsertCandle(candle); err != nil {
		return err
	}
	if p.OnUpsert != nil {
		p.OnUpsert(event.Timeframe)
	}
	return nil
}

// logUntracked notes a dropped event for a symbol outside the tracked set,
// at most once per symbol per throttle window.
func (p *Pipeline) logUntracked(symbol string) {
	p.dropMu.Lock()
	defer p.dropMu.Unlock()
	if last, ok := p.lastDropLog[symbol]; ok && time.Since(last) < untrackedLogEvery {
		return
	}
	p.lastDropLog[symbol] = time.Now()
	log.Printf("[ingest] dropping events for untracked symbol %s", symbol)
}

// buildCandle assembles the candle row for an event given its seed window
// (oldest-first, strictly before the event's bucket).
func buildCandle(event model.KlineEvent, window []model.Candle) model.Candle {
	n := len(window)
	highs := make([]float64, 0, n+1)
	lows := make([]float64, 0, n+1)
	closes := make([]float64, 0, n+1)
	volumes := make([]float64, 0, n+1)
	for i := range window {
		highs = append(highs, window[i].High)
		lows = append(lows, window[i].Low)
		closes = append(closes, window[i].Close)
		volumes = append(volumes, window[i].Volume)
	}
	highs = append(highs, event.High)
	lows = append(lows, event.Low)
	closes = append(closes, event.Close)
	volumes = append(volumes, event.Volume)

	candle := model.Candle{
		Symbol:      event.Symbol,
		Timeframe:   event.Timeframe,
		TS:          event.OpenTime,
		Open:        event.Open,
		High:        event.High,
		Low:         event.Low,
		Close:       event.Close,
		Volume:      event.Volume,
		LatestPrice: event.Close,
	}
	if n > 0 && window[n-1].Close != 0 {
		candle.PriceChange = (event.Close - window[n-1].Close) / window[n-1].Close * 100
	}

	recentHigh, recentLow := rangeExtrema(highs, lows)
	fib := indicator.Fibonacci(recentHigh, recentLow)
	macd := indicator.MACD(closes)
	adx := indicator.ADX(highs, lows, closes, adxPeriod)

	m := model.Metrics{
		ATR:        indicator.ATR(highs, lows, closes, atrPeriod),
		MACDLine:   macd.Line,
		SignalLine: macd.Signal,
		Histogram:  macd.Histogram,
		RSI:        indicator.RSI(closes, rsiPeriod),
		ADX:        adx.ADX,
		PlusDI:     adx.PlusDI,
		MinusDI:    adx.MinusDI,
		VolumeMA15: indicator.MA(volumes, 15),
		VolumeMA25: indicator.MA(volumes, 25),
		VolumeMA50: indicator.MA(volumes, 50),
		PriceEMA15: indicator.EMA(closes, 15),
		PriceEMA25: indicator.EMA(closes, 25),
		PriceEMA50: indicator.EMA(closes, 50),
		RecentHigh: recentHigh,
		RecentLow:  recentLow,
		Fibonacci:  fib,
		EntryScore: indicator.EntryScore(event.Close, recentHigh, recentLow, fib),
	}

	// The previous histogram comes from the prior bar's snapshot, not this
	// window's recomputation, so live updates of the same bucket keep a
	// stable momentum reference.
	if n > 0 {
		prev := window[n-1].Metrics
		if prev.Histogram != 0 {
			m.PrevHistogram = prev.Histogram
		} else {
			m.PrevHistogram = prev.PrevHistogram
		}
	}

	candle.Metrics = m
	return candle
}

// rangeExtrema returns the highest high and lowest low across the window
// plus the new bar.
func rangeExtrema(highs, lows []float64) (float64, float64) {
	high, low := highs[0], lows[0]
	for i := 1; i < len(highs); i++ {
		if highs[i] > high {
			high = highs[i]
		}
		if lows[i] < low {
			low = lows[i]
		}
	}
	return high, low
}
