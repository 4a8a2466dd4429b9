// Package redis holds the tracker's ephemeral coordination state: time-boxed
// alert cooldown markers, the shared last-price cache, and the alert event
// feed published to downstream consumers (dashboard, digest bots).
//
// Everything here is best-effort: a lost marker degrades to one duplicate
// alert after the cooldown, never to corrupted alert state.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptotracker/internal/model"
)

const alertEventChannel = "pub:alerts"

// Config configures the client.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Client wraps the Redis connection.
type Client struct {
	rdb *goredis.Client
}

// Redis returns the underlying client for health checks.
func (c *Client) Redis() *goredis.Client { return c.rdb }

// New connects and pings the server.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Client{rdb: rdb}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// MarkAlerted sets the cooldown marker for one alert class on a symbol.
// Returns true if the marker was newly set, false if one already existed —
// the caller must not alert again inside the window. SET NX makes the
// check-and-set atomic under concurrent detector passes.
func (c *Client) MarkAlerted(ctx context.Context, class, symbol string, window time.Duration) (bool, error) {
	key := "cooldown:" + class + ":" + symbol
	ok, err := c.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// CachePrices stores a ticker snapshot so other processes (dashboard,
// performance CLI) can reuse it without hitting the exchange.
func (c *Client) CachePrices(ctx context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	pipe := c.rdb.Pipeline()
	for symbol, price := range prices {
		pipe.Set(ctx, "price:"+symbol, price, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis cache prices: %w", err)
	}
	return nil
}

// PublishAlert emits an alert event on the pubsub feed. Failures are logged,
// not returned — delivery to the feed is best-effort and the alert is
// already persisted.
func (c *Client) PublishAlert(ctx context.Context, a model.Alert) {
	payload, err := alertJSON(a)
	if err != nil {
		log.Printf("[redis] marshal alert %d: %v", a.ID, err)
		return
	}
	if err := c.rdb.Publish(ctx, alertEventChannel, payload).Err(); err != nil {
		log.Printf("[redis] publish alert %d: %v", a.ID, err)
	}
}
