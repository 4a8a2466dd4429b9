// Command backfill seeds the candle store with REST history for every
// tracked symbol, so indicators have a full window before the live stream
// takes over. Safe to re-run; candle writes are idempotent.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"cryptotracker/config"
	"cryptotracker/internal/ingest"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/marketdata/binance"
	"cryptotracker/internal/model"
	sqlitestore "cryptotracker/internal/store/sqlite"
)

// backfillWorkers bounds concurrent REST fetches to stay inside the
// exchange's request weight limits.
const backfillWorkers = 4

func main() {
	logger.Init("backfill", slog.LevelInfo)
	log.Println("[backfill] starting...")

	cfg := config.Load()
	timeframes := cfg.ParseTFs()
	if len(timeframes) == 0 {
		log.Fatalf("[backfill] no valid timeframes configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[backfill] interrupted")
		cancel()
	}()

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[backfill] sqlite init failed: %v", err)
	}
	defer store.Close()

	rest := binance.NewREST(binance.RESTConfig{URL: cfg.BinanceAPIURL})

	symbols, err := store.Symbols()
	if err != nil {
		log.Fatalf("[backfill] load symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatalf("[backfill] no symbols in store; run the tracker once to sync the listing")
	}
	log.Printf("[backfill] %d symbols x %v", len(symbols), timeframes)

	pipeline := ingest.New(ingest.Config{}, store)
	pipeline.SetSymbols(symbols)

	var wg sync.WaitGroup
	sem := make(chan struct{}, backfillWorkers)
	for i := range symbols {
		sym := symbols[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			backfillSymbol(ctx, rest, pipeline, sym, timeframes)
		}()
	}
	wg.Wait()
	log.Println("[backfill] done.")
}

// backfillSymbol fetches one retention window of history per timeframe and
// replays it through the ingestion path, oldest-first so the indicator
// recurrences seed in order.
func backfillSymbol(ctx context.Context, rest *binance.REST, pipeline *ingest.Pipeline, sym model.Symbol, timeframes []model.Timeframe) {
	for _, tf := range timeframes {
		if ctx.Err() != nil {
			return
		}

		limit := int(tf.Retention()/tf.Duration()) + 1
		if limit > 1000 {
			limit = 1000
		}

		events, err := rest.Klines(ctx, sym.Symbol, tf, limit)
		if err != nil {
			log.Printf("[backfill] %s %s: fetch: %v", sym.Symbol, tf, err)
			continue
		}
		for _, ev := range events {
			if err := pipeline.Process(ev); err != nil {
				log.Printf("[backfill] %s %s: process: %v", sym.Symbol, tf, err)
				break
			}
		}
		log.Printf("[backfill] %s %s: %d candles", sym.Symbol, tf, len(events))
	}
}
