package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"cryptotracker/config"
	"cryptotracker/internal/alerts"
	"cryptotracker/internal/detector"
	"cryptotracker/internal/ingest"
	"cryptotracker/internal/logger"
	"cryptotracker/internal/marketdata/binance"
	"cryptotracker/internal/metrics"
	"cryptotracker/internal/model"
	"cryptotracker/internal/notification"
	"cryptotracker/internal/scheduler"
	redisstore "cryptotracker/internal/store/redis"
	sqlitestore "cryptotracker/internal/store/sqlite"
)

func main() {
	// Routes the stdlib log calls in every package through the JSON handler.
	logger.Init("tracker", slog.LevelInfo)
	log.Println("[tracker] starting...")

	cfg := config.Load()
	timeframes := cfg.ParseTFs()
	if len(timeframes) == 0 {
		log.Fatalf("[tracker] no valid timeframes configured")
	}
	log.Printf("[tracker] enabled timeframes: %v", timeframes)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[tracker] sqlite init failed: %v", err)
	}
	defer store.Close()
	log.Println("[tracker] sqlite store ready")

	// ---- Redis (cooldown markers, price cache, alert feed) ----
	rds, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[tracker] redis init failed: %v", err)
	}
	defer rds.Close()

	health.StartLivenessChecker(ctx, rds.Redis(), store.DB(), 10*time.Second)

	// ---- Market data clients ----
	rest := binance.NewREST(binance.RESTConfig{URL: cfg.BinanceAPIURL})

	// ---- Notifier ----
	var notify notification.Notifier
	if cfg.TelegramBotToken != "" {
		notify = notification.NewTelegram(notification.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			ChatIDs: map[notification.Channel]string{
				notification.ChannelTrend:  cfg.TelegramTrendChatID,
				notification.ChannelVolume: cfg.TelegramVolumeChatID,
				notification.ChannelRSI:    cfg.TelegramRSIChatID,
			},
			DefaultChatID: cfg.TelegramTrendChatID,
		})
		log.Println("[tracker] telegram notifier ready")
	} else {
		notify = notification.NewLogNotifier()
		log.Println("[tracker] no telegram token, logging notifications")
	}
	notify = countingNotifier{next: notify, prom: prom}

	// ---- Pipeline ----
	pipeline := ingest.New(ingest.Config{}, store)
	pipeline.OnUpsert = func(tf model.Timeframe) {
		prom.UpsertsTotal.WithLabelValues(string(tf)).Inc()
	}
	pipeline.OnDrop = func() {
		prom.DroppedEvents.Inc()
	}

	// ---- Signal components ----
	alertMgr := alerts.New(alerts.Config{
		RewardRatio:   cfg.RewardRatio,
		SLATRMultiple: cfg.SLATRMultiple,
	}, store)

	det := detector.New(detector.Config{
		MinNormATR:        cfg.MinNormATR,
		RSIBullMax:        cfg.RSIBullMax,
		RSIBearMin:        cfg.RSIBearMin,
		ADXThreshold:      cfg.ADXThreshold,
		VolumeSpikeFactor: cfg.VolumeSpikeFactor,
		OversoldRSI:       cfg.OversoldRSI,
		Cooldown:          cfg.AlertCooldown,
	}, store, rds, alertMgr, notify)
	det.OnAlert = func(ctx context.Context, a model.Alert) {
		prom.AlertsCreated.Inc()
		rds.PublishAlert(ctx, a)
		attrs := []any{
			slog.Int64("alert_id", a.ID),
			slog.String("symbol", a.Symbol),
			slog.String("trend", string(a.Trend)),
		}
		slog.Info("alert created", append(attrs, logger.LogWithTrace(ctx)...)...)
	}

	// ---- Initial symbol sync (streams need the listing) ----
	syncSymbols := symbolSyncer(cfg, rest, store, pipeline, prom)
	if err := syncSymbols(ctx); err != nil {
		log.Fatalf("[tracker] initial symbol sync failed: %v", err)
	}
	symbols, err := store.Symbols()
	if err != nil {
		log.Fatalf("[tracker] load symbols: %v", err)
	}
	log.Printf("[tracker] tracking %d symbols", len(symbols))

	// ---- Kline streams, one connection per timeframe ----
	events := make(chan model.KlineEvent, 4096)
	for _, tf := range timeframes {
		stream := binance.NewStream(binance.StreamConfig{
			URL:       cfg.BinanceStreamURL,
			Timeframe: tf,
			Symbols:   symbols,
		})
		stream.OnReconnect = func() {
			prom.WSReconnects.Inc()
			health.SetWSConnected(false)
		}
		tfName := string(tf)
		stream.OnEvent = func() {
			prom.KlinesTotal.WithLabelValues(tfName).Inc()
			health.SetWSConnected(true)
			health.SetLastEventTime(time.Now())
		}
		go stream.Run(ctx, events)
	}
	go pipeline.Run(ctx, events)
	log.Println("[tracker] ingestion pipeline ready")

	// ---- Periodic passes ----
	sched := scheduler.New()
	sched.Register(scheduler.Job{
		Name:     "trend",
		Interval: cfg.TrendInterval,
		Handler: func(ctx context.Context) error {
			return prom.TimePass("trend", func() error { return det.EvaluateTrends(ctx) })
		},
	})
	sched.Register(scheduler.Job{
		Name:     "volume",
		Interval: cfg.TrendInterval,
		Handler: func(ctx context.Context) error {
			return prom.TimePass("volume", func() error { return det.VolumeSpikes(ctx) })
		},
	})
	sched.Register(scheduler.Job{
		Name:     "alerts",
		Interval: cfg.AlertInterval,
		Handler: func(ctx context.Context) error {
			return prom.TimePass("alerts", func() error {
				return evaluateAlerts(ctx, rest, store, rds, alertMgr, notify, prom)
			})
		},
	})
	sched.Register(scheduler.Job{
		Name:     "rsi-digest",
		Interval: cfg.DigestInterval,
		Handler: func(ctx context.Context) error {
			return prom.TimePass("rsi_digest", func() error { return det.RSIDigest(ctx) })
		},
	})
	sched.Register(scheduler.Job{
		Name:     "retention",
		Interval: cfg.RetentionInterval,
		Handler: func(ctx context.Context) error {
			return prom.TimePass("retention", func() error { return sweepRetention(store, timeframes, prom) })
		},
	})
	sched.Register(scheduler.Job{
		Name:     "symbol-sync",
		Interval: cfg.SymbolSyncEvery,
		Handler:  syncSymbols,
	})
	sched.Start(ctx)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[tracker] shutdown signal received, cleaning up...")
	cancel()
	sched.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[tracker] shutdown complete.")
}

// symbolSyncer builds the listing refresh job: fetch active pairs and their
// 24h volume, keep the top MaxSymbols by volume, upsert them and prune the
// rest.
func symbolSyncer(cfg *config.Config, rest *binance.REST, store *sqlitestore.Store, pipeline *ingest.Pipeline, prom *metrics.Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		listed, err := rest.ExchangeInfo(ctx, cfg.QuoteAsset)
		if err != nil {
			return err
		}
		tickers, err := rest.Tickers24h(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range listed {
			t := tickers[listed[i].BaseAsset+listed[i].QuoteAsset]
			listed[i].Volume24h = t.QuoteVolume
			listed[i].LastFetched = now
		}
		sort.Slice(listed, func(i, j int) bool {
			return listed[i].Volume24h > listed[j].Volume24h
		})
		if cfg.MaxSymbols > 0 && len(listed) > cfg.MaxSymbols {
			listed = listed[:cfg.MaxSymbols]
		}

		active := make([]string, 0, len(listed))
		for i := range listed {
			if err := store.UpsertSymbol(listed[i]); err != nil {
				return err
			}
			active = append(active, listed[i].Symbol)
		}
		pruned, err := store.PruneSymbolsNotIn(active)
		if err != nil {
			return err
		}
		if pruned > 0 {
			log.Printf("[tracker] pruned %d delisted symbols", pruned)
		}

		pipeline.SetSymbols(listed)
		prom.TrackedSymbols.Set(float64(len(listed)))
		return nil
	}
}

// evaluateAlerts runs one alert re-evaluation tick: snapshot prices once,
// cache them for other consumers, advance every active alert and notify the
// transitions.
func evaluateAlerts(ctx context.Context, rest *binance.REST, store *sqlitestore.Store, rds *redisstore.Client, mgr *alerts.Manager, notify notification.Notifier, prom *metrics.Metrics) error {
	symbols, err := store.Symbols()
	if err != nil {
		return err
	}
	prices, err := rest.PriceSnapshot(ctx, symbols)
	if err != nil {
		return err
	}
	if err := rds.CachePrices(ctx, prices, 2*time.Minute); err != nil {
		log.Printf("[tracker] cache prices: %v", err)
	}

	changed, err := mgr.Evaluate(prices)
	if err != nil {
		return err
	}
	for _, a := range changed {
		if a.Status == model.AlertClosed {
			prom.AlertsClosed.Inc()
		}
		rds.PublishAlert(ctx, a)
		if err := notify.Send(ctx, notification.ChannelTrend, notification.FormatAlertOutcome(a)); err != nil {
			log.Printf("[tracker] notify alert %d: %v", a.ID, err)
		}
	}
	return nil
}

// sweepRetention prunes candles past each timeframe's retention window.
func sweepRetention(store *sqlitestore.Store, timeframes []model.Timeframe, prom *metrics.Metrics) error {
	now := time.Now().UTC()
	for _, tf := range timeframes {
		n, err := store.DeleteCandlesOlderThan(tf, now.Add(-tf.Retention()))
		if err != nil {
			return err
		}
		if n > 0 {
			prom.CandlesPruned.WithLabelValues(string(tf)).Add(float64(n))
			log.Printf("[tracker] retention: pruned %d %s candles", n, tf)
		}
	}
	return nil
}

// countingNotifier wraps a Notifier and counts delivery failures.
type countingNotifier struct {
	next notification.Notifier
	prom *metrics.Metrics
}

func (n countingNotifier) Send(ctx context.Context, ch notification.Channel, text string) error {
	err := n.next.Send(ctx, ch, text)
	if err != nil {
		n.prom.NotifyFailures.Inc()
	}
	if ch == notification.ChannelVolume && err == nil {
		n.prom.VolumeSpikes.Inc()
	}
	return err
}
