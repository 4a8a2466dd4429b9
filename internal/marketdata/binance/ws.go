// Package binance is the feed ingress: a combined kline WebSocket stream and
// a REST client for listings, history backfill and ticker snapshots. The
// pipeline downstream does not care which transport produced an event.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cryptotracker/internal/model"
)

const (
	defaultStreamURL = "wss://stream.binance.com:9443/stream"

	// Binance closes idle connections after ~10 minutes without traffic;
	// a healthy kline stream ticks far more often than this.
	readTimeout = 3 * time.Minute

	reconnectBase = time.Second
	reconnectMax  = time.Minute
)

// StreamConfig configures one kline stream connection.
type StreamConfig struct {
	URL       string // stream endpoint; defaults to the Binance combined stream
	Timeframe model.Timeframe
	Symbols   []model.Symbol
}

// Stream consumes kline events for one timeframe across many symbols and
// pushes them into an output channel. Reconnects with bounded backoff on
// any read failure; a disconnect is never fatal.
type Stream struct {
	cfg     StreamConfig
	pairs   map[string]string // "BTCUSDT" → "BTC/USDT"
	streams string            // combined stream query path

	// Optional metrics hooks.
	OnReconnect func()
	OnEvent     func()
}

// NewStream creates a stream for the given symbols and timeframe.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.URL == "" {
		cfg.URL = defaultStreamURL
	}

	pairs := make(map[string]string, len(cfg.Symbols))
	names := make([]string, 0, len(cfg.Symbols))
	for i := range cfg.Symbols {
		sym := &cfg.Symbols[i]
		name := sym.StreamName()
		pairs[strings.ToUpper(name)] = sym.Symbol
		names = append(names, name+"@kline_"+string(cfg.Timeframe))
	}

	return &Stream{
		cfg:     cfg,
		pairs:   pairs,
		streams: strings.Join(names, "/"),
	}
}

// Run connects and streams kline events into out until ctx is cancelled.
func (s *Stream) Run(ctx context.Context, out chan<- model.KlineEvent) {
	if len(s.pairs) == 0 {
		log.Printf("[ws] no symbols for %s stream, nothing to do", s.cfg.Timeframe)
		return
	}

	var backoff backoffTimer
	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := s.runOnce(ctx, out)
		if ctx.Err() != nil {
			return
		}
		delay := backoff.next(time.Since(started))
		log.Printf("[ws] %s stream disconnected: %v (reconnecting in %v)", s.cfg.Timeframe, err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoffTimer produces reconnect delays: doubling from the base up to the
// cap. A session that lived past the read timeout was healthy, so its drop
// starts over from the base instead of paying for old flapping.
type backoffTimer struct {
	cur time.Duration
}

func (b *backoffTimer) next(sessionAge time.Duration) time.Duration {
	if b.cur == 0 || sessionAge >= readTimeout {
		b.cur = reconnectBase
		return b.cur
	}
	b.cur *= 2
	if b.cur > reconnectMax {
		b.cur = reconnectMax
	}
	return b.cur
}

// runOnce holds a single connection open and pumps events until it fails.
func (s *Stream) runOnce(ctx context.Context, out chan<- model.KlineEvent) error {
	url := s.cfg.URL + "?streams=" + s.streams

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Printf("[ws] connected %s stream (%d symbols)", s.cfg.Timeframe, len(s.pairs))

	// Unblock the read loop on cancellation. The watcher exits with the
	// connection, so reconnect cycles never accumulate goroutines.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		event, ok := s.parse(msg)
		if !ok {
			continue
		}
		if s.OnEvent != nil {
			s.OnEvent()
		}

		select {
		case out <- event:
		default:
			log.Printf("[ws] event channel full, dropping %s %s", event.Symbol, event.Timeframe)
		}
	}
}

// combinedMessage is the envelope of the combined stream endpoint.
type combinedMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string   `json:"s"`
		Kline  rawKline `json:"k"`
	} `json:"data"`
}

type rawKline struct {
	OpenTime int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

func (s *Stream) parse(msg []byte) (model.KlineEvent, bool) {
	var cm combinedMessage
	if err := json.Unmarshal(msg, &cm); err != nil {
		log.Printf("[ws] parse error: %v", err)
		return model.KlineEvent{}, false
	}
	if cm.Data.Kline.OpenTime == 0 {
		return model.KlineEvent{}, false // subscription ack or unrelated frame
	}

	pair, ok := s.pairs[cm.Data.Symbol]
	if !ok {
		return model.KlineEvent{}, false
	}

	k := cm.Data.Kline
	event := model.KlineEvent{
		Symbol:    pair,
		Timeframe: s.cfg.Timeframe,
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
		Closed:    k.Closed,
	}
	return event, true
}
