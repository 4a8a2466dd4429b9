package ingest

import (
	"bytes"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cryptotracker/internal/model"
	"cryptotracker/internal/store/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(symbol string, ts time.Time, close float64) model.KlineEvent {
	return model.KlineEvent{
		Symbol:    symbol,
		Timeframe: model.TF15m,
		OpenTime:  ts,
		Open:      close - 1,
		High:      close + 2,
		Low:       close - 2,
		Close:     close,
		Volume:    100,
		Closed:    true,
	}
}

func TestProcess_UnknownSymbolDropped(t *testing.T) {
	store := openTestStore(t)
	p := New(Config{}, store)
	p.SetSymbols([]model.Symbol{{Symbol: "BTC/USDT"}})

	if err := p.Process(testEvent("DOGE/USDT", time.Now().UTC(), 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := store.LatestCandle("DOGE/USDT", model.TF15m); err != sqlite.ErrNotFound {
		t.Fatalf("expected no candle for untracked symbol, got err=%v", err)
	}
}

func TestProcess_UnknownSymbolLogsOncePerWindow(t *testing.T) {
	store := openTestStore(t)
	p := New(Config{}, store)
	p.SetSymbols([]model.Symbol{{Symbol: "BTC/USDT"}})

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	for i := 0; i < 3; i++ {
		if err := p.Process(testEvent("DOGE/USDT", time.Now().UTC(), 1)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if n := strings.Count(buf.String(), "untracked symbol DOGE/USDT"); n != 1 {
		t.Fatalf("logged %d times for repeated untracked events, want 1", n)
	}
}

func TestProcess_StoresCandleWithPriceChange(t *testing.T) {
	store := openTestStore(t)
	p := New(Config{}, store)
	p.SetSymbols([]model.Symbol{{Symbol: "BTC/USDT"}})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := p.Process(testEvent("BTC/USDT", base, 100)); err != nil {
		t.Fatalf("process first: %v", err)
	}
	if err := p.Process(testEvent("BTC/USDT", base.Add(15*time.Minute), 110)); err != nil {
		t.Fatalf("process second: %v", err)
	}

	c, err := store.LatestCandle("BTC/USDT", model.TF15m)
	if err != nil {
		t.Fatalf("latest candle: %v", err)
	}
	if math.Abs(c.PriceChange-10) > 1e-9 {
		t.Fatalf("price change = %v, want 10", c.PriceChange)
	}
	if c.LatestPrice != 110 {
		t.Fatalf("latest price = %v, want 110", c.LatestPrice)
	}
}

func TestProcess_LiveUpdateReplacesSameBucket(t *testing.T) {
	store := openTestStore(t)
	p := New(Config{}, store)
	p.SetSymbols([]model.Symbol{{Symbol: "BTC/USDT"}})

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := p.Process(testEvent("BTC/USDT", ts, 100)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(testEvent("BTC/USDT", ts, 103)); err != nil {
		t.Fatalf("process update: %v", err)
	}

	candles, err := store.RecentBefore("BTC/USDT", model.TF15m, ts.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles for one bucket, want 1", len(candles))
	}
	if candles[0].Close != 103 {
		t.Fatalf("close = %v, want the later write", candles[0].Close)
	}
}

func TestBuildCandle_MetricsAfterWarmup(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var window []model.Candle
	price := 100.0
	for i := 0; i < seedWindow; i++ {
		price += 0.5
		window = append(window, model.Candle{
			Symbol:    "BTC/USDT",
			Timeframe: model.TF15m,
			TS:        base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
		})
	}

	event := testEvent("BTC/USDT", base.Add(seedWindow*15*time.Minute), price+0.5)
	c := buildCandle(event, window)

	if c.Metrics.ATR <= 0 {
		t.Fatalf("ATR = %v, want > 0 after warmup", c.Metrics.ATR)
	}
	if c.Metrics.RSI <= 50 {
		t.Fatalf("RSI = %v, want > 50 on a rising series", c.Metrics.RSI)
	}
	if c.Metrics.MACDLine <= c.Metrics.SignalLine {
		t.Fatalf("MACD %v <= signal %v on a rising series", c.Metrics.MACDLine, c.Metrics.SignalLine)
	}
	if c.Metrics.VolumeMA15 != 100 {
		t.Fatalf("VMA15 = %v, want 100", c.Metrics.VolumeMA15)
	}
	if c.Metrics.RecentHigh <= c.Metrics.RecentLow {
		t.Fatalf("range [%v, %v] inverted", c.Metrics.RecentLow, c.Metrics.RecentHigh)
	}
}

func TestBuildCandle_NoHistoryYieldsZeroIndicators(t *testing.T) {
	event := testEvent("BTC/USDT", time.Now().UTC(), 100)
	c := buildCandle(event, nil)

	if c.PriceChange != 0 {
		t.Fatalf("price change = %v, want 0 with no history", c.PriceChange)
	}
	if c.Metrics.ATR != 0 || c.Metrics.RSI != 0 || c.Metrics.MACDLine != 0 {
		t.Fatalf("indicators should be zero with no history: %+v", c.Metrics)
	}
	if c.Metrics.RecentHigh != event.High || c.Metrics.RecentLow != event.Low {
		t.Fatalf("range should fall back to the bar itself")
	}
}

func TestBuildCandle_CarriesPreviousHistogram(t *testing.T) {
	prev := model.Candle{
		Close:   100,
		Metrics: model.Metrics{Histogram: 0.42},
	}
	event := testEvent("BTC/USDT", time.Now().UTC(), 101)
	c := buildCandle(event, []model.Candle{prev})

	if c.Metrics.PrevHistogram != 0.42 {
		t.Fatalf("prev histogram = %v, want 0.42", c.Metrics.PrevHistogram)
	}
}
