package detector

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/model"
	"cryptotracker/internal/notification"
	"cryptotracker/internal/store/sqlite"
)

type fakeCooldowns struct {
	allow bool
	calls int
}

func (f *fakeCooldowns) MarkAlerted(ctx context.Context, class, symbol string, window time.Duration) (bool, error) {
	f.calls++
	return f.allow, nil
}

type sentMessage struct {
	ch   notification.Channel
	text string
}

type fakeNotifier struct {
	sent []sentMessage
}

func (f *fakeNotifier) Send(ctx context.Context, ch notification.Channel, text string) error {
	f.sent = append(f.sent, sentMessage{ch, text})
	return nil
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestDetector(t *testing.T, store *sqlite.Store, allow bool) (*Detector, *fakeCooldowns, *fakeNotifier) {
	t.Helper()
	cd := &fakeCooldowns{allow: allow}
	fn := &fakeNotifier{}
	d := New(Config{}, store, cd, alerts.New(alerts.Config{}, store), fn)
	return d, cd, fn
}

// bullishMetrics passes every leg of the bullish rule under default policy.
func bullishMetrics() model.Metrics {
	return model.Metrics{
		ATR:           4, // 4% of a close at 100
		ADX:           30,
		MACDLine:      1.0,
		SignalLine:    0.5,
		Histogram:     0.5,
		PrevHistogram: 0.2,
		RSI:           40,
	}
}

func candleWith(symbol string, tf model.Timeframe, ts time.Time, m model.Metrics) model.Candle {
	return model.Candle{
		Symbol:    symbol,
		Timeframe: tf,
		TS:        ts,
		Open:      99,
		High:      103,
		Low:       98,
		Close:     100,
		Volume:    500,
		Metrics:   m,
	}
}

func TestClassify(t *testing.T) {
	d, _, _ := newTestDetector(t, openTestStore(t), true)
	higher := model.Metrics{MACDLine: 1, SignalLine: 0.5}

	cases := []struct {
		name   string
		mutate func(*model.Metrics)
		higher model.Metrics
		want   model.Trend
	}{
		{"bullish", func(m *model.Metrics) {}, higher, model.TrendBullish},
		{"quiet symbol", func(m *model.Metrics) { m.ATR = 1 }, higher, model.TrendNeutral},
		{"weak adx", func(m *model.Metrics) { m.ADX = 20 }, higher, model.TrendNeutral},
		{"overbought", func(m *model.Metrics) { m.RSI = 60 }, higher, model.TrendNeutral},
		{"fading momentum", func(m *model.Metrics) { m.PrevHistogram = 0.9 }, higher, model.TrendNeutral},
		{"higher tf disagrees", func(m *model.Metrics) {}, model.Metrics{MACDLine: 0.1, SignalLine: 0.5}, model.TrendNeutral},
		{"no history", func(m *model.Metrics) { *m = model.Metrics{} }, higher, model.TrendNeutral},
	}
	for _, tc := range cases {
		m := bullishMetrics()
		tc.mutate(&m)
		c := candleWith("BTC/USDT", model.TF15m, time.Now().UTC(), m)
		if got := d.classify(c, tc.higher); got != tc.want {
			t.Errorf("%s: classify = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassify_Bearish(t *testing.T) {
	d, _, _ := newTestDetector(t, openTestStore(t), true)

	m := model.Metrics{
		ATR:           4,
		ADX:           30,
		MACDLine:      -1.0,
		SignalLine:    -0.5,
		Histogram:     -0.5,
		PrevHistogram: -0.2,
		RSI:           60,
	}
	c := candleWith("BTC/USDT", model.TF15m, time.Now().UTC(), m)
	higher := model.Metrics{MACDLine: -1, SignalLine: -0.5}

	if got := d.classify(c, higher); got != model.TrendBearish {
		t.Fatalf("classify = %s, want bearish", got)
	}
}

func seedBullishSymbol(t *testing.T, store *sqlite.Store, symbol string) {
	t.Helper()
	if err := store.UpsertSymbol(model.Symbol{Symbol: symbol, BaseAsset: "BTC", QuoteAsset: "USDT", Volume24h: 1e6}); err != nil {
		t.Fatalf("upsert symbol: %v", err)
	}
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.UpsertCandle(candleWith(symbol, model.TF15m, ts, bullishMetrics())); err != nil {
		t.Fatalf("upsert 15m candle: %v", err)
	}
	if _, err := store.UpsertCandle(candleWith(symbol, model.TF1h, ts, bullishMetrics())); err != nil {
		t.Fatalf("upsert 1h candle: %v", err)
	}
}

func TestEvaluateTrends_EmitsAlertOnTransition(t *testing.T) {
	store := openTestStore(t)
	seedBullishSymbol(t, store, "BTC/USDT")
	d, _, fn := newTestDetector(t, store, true)

	if err := d.EvaluateTrends(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	active, err := store.ActiveAlerts()
	if err != nil {
		t.Fatalf("active alerts: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d alerts, want 1", len(active))
	}
	a := active[0]
	if a.Trend != model.TrendBullish || a.Entry != 100 {
		t.Fatalf("alert = %+v", a)
	}
	if a.StopLoss != 94 { // entry 100, ATR 4, 1.5x stop
		t.Fatalf("stop = %v, want 94", a.StopLoss)
	}

	sym, err := store.Symbol("BTC/USDT")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if sym.LastTrend != model.TrendBullish {
		t.Fatalf("last trend = %s, want bullish", sym.LastTrend)
	}

	if len(fn.sent) != 1 || fn.sent[0].ch != notification.ChannelTrend {
		t.Fatalf("notifications = %+v", fn.sent)
	}
}

func TestEvaluateTrends_AlertContextCarriesTraceID(t *testing.T) {
	store := openTestStore(t)
	seedBullishSymbol(t, store, "BTC/USDT")
	d, _, _ := newTestDetector(t, store, true)

	var traceID string
	d.OnAlert = func(ctx context.Context, a model.Alert) {
		traceID = logger.TraceID(ctx)
	}

	if err := d.EvaluateTrends(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !strings.HasPrefix(traceID, "BTC/USDT-") {
		t.Fatalf("trace id = %q, want symbol-keyed", traceID)
	}
}

func TestEvaluateTrends_NoRepeatAlertForSameTrend(t *testing.T) {
	store := openTestStore(t)
	seedBullishSymbol(t, store, "BTC/USDT")
	d, _, fn := newTestDetector(t, store, true)

	for i := 0; i < 2; i++ {
		if err := d.EvaluateTrends(context.Background()); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}

	active, _ := store.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("got %d alerts after two passes, want 1", len(active))
	}
	if len(fn.sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(fn.sent))
	}
}

func TestEvaluateTrends_CooldownBlocksAlertButTrendSticks(t *testing.T) {
	store := openTestStore(t)
	seedBullishSymbol(t, store, "BTC/USDT")
	d, cd, fn := newTestDetector(t, store, false)

	if err := d.EvaluateTrends(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if cd.calls != 1 {
		t.Fatalf("cooldown checked %d times, want 1", cd.calls)
	}
	if active, _ := store.ActiveAlerts(); len(active) != 0 {
		t.Fatalf("alert created despite cooldown")
	}
	if len(fn.sent) != 0 {
		t.Fatalf("notification sent despite cooldown")
	}

	sym, _ := store.Symbol("BTC/USDT")
	if sym.LastTrend != model.TrendBullish {
		t.Fatalf("last trend = %s, want bullish even without alert", sym.LastTrend)
	}
}

func TestVolumeSpikes_AlertsOnceAndMarksBar(t *testing.T) {
	store := openTestStore(t)
	if err := store.UpsertSymbol(model.Symbol{Symbol: "BTC/USDT", Volume24h: 1e6}); err != nil {
		t.Fatalf("upsert symbol: %v", err)
	}

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := candleWith("BTC/USDT", model.TF15m, ts, model.Metrics{VolumeMA15: 100})
	c.Volume = 250           // 2.5x average
	c.High, c.Low = 102, 100 // 2% amplitude, above the top-rank floor
	if _, err := store.UpsertCandle(c); err != nil {
		t.Fatalf("upsert candle: %v", err)
	}

	d, _, fn := newTestDetector(t, store, true)
	for i := 0; i < 2; i++ {
		if err := d.VolumeSpikes(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	if len(fn.sent) != 1 {
		t.Fatalf("got %d notifications for one bar, want 1", len(fn.sent))
	}
	if fn.sent[0].ch != notification.ChannelVolume {
		t.Fatalf("channel = %s, want volume", fn.sent[0].ch)
	}

	sym, _ := store.Symbol("BTC/USDT")
	if !sym.LastVolumeAlert.Equal(ts) {
		t.Fatalf("last volume alert = %v, want %v", sym.LastVolumeAlert, ts)
	}
}

func TestVolumeSpikes_IgnoresNormalVolume(t *testing.T) {
	store := openTestStore(t)
	if err := store.UpsertSymbol(model.Symbol{Symbol: "BTC/USDT", Volume24h: 1e6}); err != nil {
		t.Fatalf("upsert symbol: %v", err)
	}
	c := candleWith("BTC/USDT", model.TF15m, time.Now().UTC(), model.Metrics{VolumeMA15: 100})
	c.Volume = 150
	if _, err := store.UpsertCandle(c); err != nil {
		t.Fatalf("upsert candle: %v", err)
	}

	d, _, fn := newTestDetector(t, store, true)
	if err := d.VolumeSpikes(context.Background()); err != nil {
		t.Fatalf("pass: %v", err)
	}
	if len(fn.sent) != 0 {
		t.Fatalf("unexpected notification: %+v", fn.sent)
	}
}

func TestMinAmplitude_LoosensWithRank(t *testing.T) {
	for _, tc := range []struct {
		rank int
		want float64
	}{
		{0, 1}, {19, 1}, {20, 2}, {49, 2}, {50, 3}, {119, 3}, {120, 4},
	} {
		if got := minAmplitude(tc.rank); got != tc.want {
			t.Errorf("minAmplitude(%d) = %v, want %v", tc.rank, got, tc.want)
		}
	}
}

func TestRSIDigest(t *testing.T) {
	store := openTestStore(t)
	if err := store.UpsertSymbol(model.Symbol{Symbol: "BTC/USDT", Volume24h: 1e6}); err != nil {
		t.Fatalf("upsert symbol: %v", err)
	}
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	oversold := candleWith("BTC/USDT", model.TF15m, ts, model.Metrics{RSI: 24})
	if _, err := store.UpsertCandle(oversold); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	healthy := candleWith("BTC/USDT", model.TF1h, ts, model.Metrics{RSI: 55})
	if _, err := store.UpsertCandle(healthy); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	d, _, fn := newTestDetector(t, store, true)
	if err := d.RSIDigest(context.Background()); err != nil {
		t.Fatalf("digest: %v", err)
	}

	if len(fn.sent) != 1 || fn.sent[0].ch != notification.ChannelRSI {
		t.Fatalf("notifications = %+v", fn.sent)
	}
	if !strings.Contains(fn.sent[0].text, "BTC/USDT 15m") {
		t.Fatalf("digest text = %q", fn.sent[0].text)
	}
	if strings.Contains(fn.sent[0].text, "1h") {
		t.Fatalf("healthy RSI leaked into digest: %q", fn.sent[0].text)
	}
}

func TestRSIDigest_SilentWhenNothingOversold(t *testing.T) {
	store := openTestStore(t)
	d, _, fn := newTestDetector(t, store, true)

	if err := d.RSIDigest(context.Background()); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if len(fn.sent) != 0 {
		t.Fatalf("unexpected digest: %+v", fn.sent)
	}
}
