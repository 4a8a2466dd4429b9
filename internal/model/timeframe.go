package model

import (
	"fmt"
	"time"
)

// Timeframe is a candle bucket size. The tracker works with a fixed set of
// Binance kline intervals rather than arbitrary durations.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// AllTimeframes lists the supported timeframes, smallest first.
var AllTimeframes = []Timeframe{TF1m, TF15m, TF1h, TF4h}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TF1m, TF15m, TF1h, TF4h:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Duration returns the bucket length.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	}
	return 0
}

// Retention returns how much history is kept for this timeframe before the
// retention sweep may delete it. Roughly 55-70 closed bars per timeframe,
// enough to reseed every indicator recurrence after a restart.
func (tf Timeframe) Retention() time.Duration {
	switch tf {
	case TF1m:
		return 70 * time.Minute
	case TF15m:
		return 15 * time.Hour
	case TF1h:
		return 55 * time.Hour
	case TF4h:
		return 55 * 4 * time.Hour
	}
	return 0
}

// Higher returns the next-larger timeframe used for trend confirmation,
// or "" when there is none.
func (tf Timeframe) Higher() Timeframe {
	switch tf {
	case TF1m:
		return TF15m
	case TF15m:
		return TF1h
	case TF1h:
		return TF4h
	}
	return ""
}
