package alerts

import (
	"path/filepath"
	"testing"

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

func TestCreate_BullishLevels(t *testing.T) {
	m := New(Config{}, openTestStore(t))

	a, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("alert was not assigned an id")
	}
	if a.StopLoss != 85 || a.TP1 != 115 || a.TP2 != 125 || a.TP3 != 135 {
		t.Fatalf("levels = SL %v TP %v/%v/%v, want 85 115/125/135",
			a.StopLoss, a.TP1, a.TP2, a.TP3)
	}
	if a.Status != model.AlertOpen {
		t.Fatalf("status = %s, want open", a.Status)
	}
}

func TestCreate_BearishLevels(t *testing.T) {
	m := New(Config{}, openTestStore(t))

	a, err := m.Create("BTC/USDT", model.TrendBearish, model.TrendBullish, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.StopLoss != 115 || a.TP1 != 85 || a.TP2 != 75 || a.TP3 != 65 {
		t.Fatalf("levels = SL %v TP %v/%v/%v, want 115 85/75/65",
			a.StopLoss, a.TP1, a.TP2, a.TP3)
	}
}

func TestCreate_RejectsNeutralAndZeroATR(t *testing.T) {
	m := New(Config{}, openTestStore(t))

	if _, err := m.Create("BTC/USDT", model.TrendNeutral, "", 100, 10); err == nil {
		t.Fatal("expected error for neutral trend")
	}
	if _, err := m.Create("BTC/USDT", model.TrendBullish, "", 100, 0); err == nil {
		t.Fatal("expected error for zero ATR")
	}
}

// evaluateOne runs one tick with a single price and returns the stored alert.
func evaluateOne(t *testing.T, m *Manager, store *sqlite.Store, symbol string, id int64, price float64) model.Alert {
	t.Helper()
	if _, err := m.Evaluate(model.PriceSnapshot{symbol: price}); err != nil {
		t.Fatalf("evaluate at %v: %v", price, err)
	}
	return alertByID(t, store, id)
}

func alertByID(t *testing.T, store *sqlite.Store, id int64) model.Alert {
	t.Helper()
	active, err := store.ActiveAlerts()
	if err != nil {
		t.Fatalf("active alerts: %v", err)
	}
	for _, a := range active {
		if a.ID == id {
			return a
		}
	}
	closed, err := store.ClosedAlerts()
	if err != nil {
		t.Fatalf("closed alerts: %v", err)
	}
	for _, a := range closed {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("alert %d not found", id)
	return model.Alert{}
}

func TestEvaluate_BullishRunToTP3(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	a, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		price  float64
		result int
		status model.AlertStatus
	}{
		{105, 0, model.AlertOpen},
		{117, model.ResultTP1, model.AlertPartial},
		{136, model.ResultTP3, model.AlertClosed},
	}
	for _, step := range steps {
		got := evaluateOne(t, m, store, a.Symbol, a.ID, step.price)
		if got.Result != step.result || got.Status != step.status {
			t.Fatalf("after %v: result=%d status=%s, want %d %s",
				step.price, got.Result, got.Status, step.result, step.status)
		}
	}

	// A price below the original stop after close must change nothing.
	got := evaluateOne(t, m, store, a.Symbol, a.ID, 80)
	if got.Result != model.ResultTP3 || got.Status != model.AlertClosed {
		t.Fatalf("closed alert re-evaluated: result=%d status=%s", got.Result, got.Status)
	}
}

func TestEvaluate_StopAfterTP1(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	a, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	evaluateOne(t, m, store, a.Symbol, a.ID, 105)
	evaluateOne(t, m, store, a.Symbol, a.ID, 117)
	got := evaluateOne(t, m, store, a.Symbol, a.ID, 90)

	if got.Result != model.ResultSLAfterTP1 {
		t.Fatalf("result = %d, want %d", got.Result, model.ResultSLAfterTP1)
	}
	if got.Status != model.AlertClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}
	if got.HighestPrice != 117 || got.LowestPrice != 90 {
		t.Fatalf("extrema = [%v, %v], want [90, 117]", got.LowestPrice, got.HighestPrice)
	}
}

func TestEvaluate_PlainStopLoss(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	a, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got := evaluateOne(t, m, store, a.Symbol, a.ID, 84)
	if got.Result != model.ResultSL || got.Status != model.AlertClosed {
		t.Fatalf("result=%d status=%s, want %d closed", got.Result, got.Status, model.ResultSL)
	}
}

func TestEvaluate_BearishMirror(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	a, err := m.Create("ETH/USDT", model.TrendBearish, model.TrendBullish, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got := evaluateOne(t, m, store, a.Symbol, a.ID, 83)
	if got.Result != model.ResultTP1 || got.Status != model.AlertPartial {
		t.Fatalf("result=%d status=%s, want TP1 partial", got.Result, got.Status)
	}

	got = evaluateOne(t, m, store, a.Symbol, a.ID, 64)
	if got.Result != model.ResultTP3 || got.Status != model.AlertClosed {
		t.Fatalf("result=%d status=%s, want TP3 closed", got.Result, got.Status)
	}
}

func TestEvaluate_MissingPriceSkips(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	a, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := m.Evaluate(model.PriceSnapshot{"ETH/USDT": 5000})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("changed = %d alerts, want 0", len(changed))
	}

	got := alertByID(t, store, a.ID)
	if got.HighestPrice != 0 || got.Status != model.AlertOpen {
		t.Fatalf("skipped alert mutated: %+v", got)
	}
}

func TestEvaluate_ReportsOnlyChangedResults(t *testing.T) {
	store := openTestStore(t)
	m := New(Config{}, store)

	if _, err := m.Create("BTC/USDT", model.TrendBullish, model.TrendNeutral, 100, 10); err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := m.Evaluate(model.PriceSnapshot{"BTC/USDT": 105})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("extrema-only tick reported %d changes", len(changed))
	}

	changed, err = m.Evaluate(model.PriceSnapshot{"BTC/USDT": 116})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(changed) != 1 || changed[0].Result != model.ResultTP1 {
		t.Fatalf("changed = %+v, want one TP1 hit", changed)
	}
}
