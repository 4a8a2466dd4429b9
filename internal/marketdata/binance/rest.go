package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cryptotracker/internal/model"
)

const defaultAPIURL = "https://api.binance.com"

// RESTConfig configures the REST client.
type RESTConfig struct {
	URL     string // API base; defaults to the public endpoint
	Timeout time.Duration
}

// REST is the polled side of the feed: exchange listings, candle history
// and 24h ticker snapshots.
type REST struct {
	base   string
	client *http.Client
}

// NewREST creates a REST client.
func NewREST(cfg RESTConfig) *REST {
	if cfg.URL == "" {
		cfg.URL = defaultAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &REST{
		base:   cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ExchangeInfo returns all actively trading pairs with the given quote
// asset ("" for all), in pair form ("BTC/USDT").
func (r *REST) ExchangeInfo(ctx context.Context, quoteAsset string) ([]model.Symbol, error) {
	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := r.get(ctx, "/api/v3/exchangeInfo", nil, &resp); err != nil {
		return nil, err
	}

	symbols := make([]model.Symbol, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		if quoteAsset != "" && s.QuoteAsset != quoteAsset {
			continue
		}
		symbols = append(symbols, model.Symbol{
			Symbol:     s.BaseAsset + "/" + s.QuoteAsset,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		})
	}
	return symbols, nil
}

// Klines fetches up to limit recent candles for one symbol/timeframe,
// oldest-first, in the same shape the stream delivers.
func (r *REST) Klines(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.KlineEvent, error) {
	params := url.Values{
		"symbol":   {concatPair(symbol)},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}

	// Each row: [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := r.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	events := make([]model.KlineEvent, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("binance: kline open time: %w", err)
		}
		events = append(events, model.KlineEvent{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  time.UnixMilli(openTime).UTC(),
			Open:      rawFloat(row[1]),
			High:      rawFloat(row[2]),
			Low:       rawFloat(row[3]),
			Close:     rawFloat(row[4]),
			Volume:    rawFloat(row[5]),
			Closed:    true,
		})
	}
	return events, nil
}

// Ticker holds one pair's 24h statistics.
type Ticker struct {
	LastPrice   float64
	QuoteVolume float64
}

// Tickers24h returns 24h statistics for every listed pair, keyed by the
// exchange's concatenated symbol form ("BTCUSDT").
func (r *REST) Tickers24h(ctx context.Context) (map[string]Ticker, error) {
	var resp []struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := r.get(ctx, "/api/v3/ticker/24hr", nil, &resp); err != nil {
		return nil, err
	}

	tickers := make(map[string]Ticker, len(resp))
	for _, t := range resp {
		tickers[t.Symbol] = Ticker{
			LastPrice:   parseFloat(t.LastPrice),
			QuoteVolume: parseFloat(t.QuoteVolume),
		}
	}
	return tickers, nil
}

// PriceSnapshot fetches all tickers once and keys last prices by pair form.
// The snapshot is scoped to a single evaluation pass; callers pass it down
// instead of re-fetching per symbol.
func (r *REST) PriceSnapshot(ctx context.Context, symbols []model.Symbol) (model.PriceSnapshot, error) {
	tickers, err := r.Tickers24h(ctx)
	if err != nil {
		return nil, err
	}

	prices := make(model.PriceSnapshot, len(symbols))
	for i := range symbols {
		if t, ok := tickers[concatPair(symbols[i].Symbol)]; ok && t.LastPrice > 0 {
			prices[symbols[i].Symbol] = t.LastPrice
		}
	}
	return prices, nil
}

func (r *REST) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := r.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("binance: create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance: %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("binance: %s: decode: %w", path, err)
	}
	return nil
}

// concatPair converts "BTC/USDT" to the exchange's "BTCUSDT" form.
func concatPair(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] != '/' {
			out = append(out, symbol[i])
		}
	}
	return string(out)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func rawFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFloat(s)
	}
	var v float64
	json.Unmarshal(raw, &v)
	return v
}
