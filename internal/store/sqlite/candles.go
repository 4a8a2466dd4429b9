package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cryptotracker/internal/model"
)

// UpsertCandle inserts or replaces the candle keyed by
// (symbol, timeframe, ts). OHLCV and the metrics blob are written as one
// atomic row, so a candle is never stored without its indicator snapshot.
// Calling twice with the same key keeps exactly one row; the later write's
// metrics win. Returns the stored candle.
func (s *Store) UpsertCandle(c model.Candle) (model.Candle, error) {
	metrics, err := json.Marshal(c.Metrics)
	if err != nil {
		return model.Candle{}, fmt.Errorf("sqlite: marshal metrics: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO candles
			(symbol, timeframe, ts, open, high, low, close, volume, latest_price, price_change, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Symbol, string(c.Timeframe), c.TS.Unix(),
		c.Open, c.High, c.Low, c.Close, c.Volume,
		c.LatestPrice, c.PriceChange, string(metrics),
	)
	if err != nil {
		return model.Candle{}, fmt.Errorf("sqlite: upsert candle %s/%s: %w", c.Symbol, c.Timeframe, err)
	}
	return c, nil
}

// RecentBefore returns the last n candles strictly before ts, oldest-first.
// This is the canonical seed window for indicator recomputation; callers
// append the new bar before invoking the indicator library. Returning fewer
// than n rows is not an error.
func (s *Store) RecentBefore(symbol string, tf model.Timeframe, ts time.Time, n int) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timeframe, ts, open, high, low, close, volume, latest_price, price_change, metrics
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts < ?
		ORDER BY ts DESC
		LIMIT ?`,
		symbol, string(tf), ts.Unix(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent before: %w", err)
	}
	defer rows.Close()

	candles, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}

	// Query returned newest-first; callers want oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// LatestCandle returns the most recent candle for (symbol, timeframe).
// Returns ErrNotFound when the pair has no history.
func (s *Store) LatestCandle(symbol string, tf model.Timeframe) (model.Candle, error) {
	row := s.db.QueryRow(`
		SELECT symbol, timeframe, ts, open, high, low, close, volume, latest_price, price_change, metrics
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT 1`,
		symbol, string(tf),
	)

	c, err := scanCandle(row)
	if err == sql.ErrNoRows {
		return model.Candle{}, ErrNotFound
	}
	if err != nil {
		return model.Candle{}, fmt.Errorf("sqlite: latest candle: %w", err)
	}
	return c, nil
}

// LatestCandles returns the most recent candle per symbol for one timeframe,
// the working set of a detector pass.
func (s *Store) LatestCandles(tf model.Timeframe) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT c.symbol, c.timeframe, c.ts, c.open, c.high, c.low, c.close, c.volume,
		       c.latest_price, c.price_change, c.metrics
		FROM candles c
		JOIN (
			SELECT symbol, MAX(ts) AS max_ts
			FROM candles
			WHERE timeframe = ?
			GROUP BY symbol
		) latest ON latest.symbol = c.symbol AND latest.max_ts = c.ts
		WHERE c.timeframe = ?`,
		string(tf), string(tf),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// CountCandlesSince returns how many candles exist for (symbol, timeframe)
// at or after since. Used to decide whether a symbol needs REST backfill.
func (s *Store) CountCandlesSince(symbol string, tf model.Timeframe, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ?`,
		symbol, string(tf), since.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count candles: %w", err)
	}
	return n, nil
}

// DeleteCandlesOlderThan removes candles for one timeframe with ts before
// cutoff, but never a symbol's single most recent candle — an outage must
// not leave the detector with nothing to read. Returns the number deleted.
func (s *Store) DeleteCandlesOlderThan(tf model.Timeframe, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM candles
		WHERE timeframe = ? AND ts < ?
		  AND ts < (
			SELECT MAX(ts) FROM candles c2
			WHERE c2.symbol = candles.symbol AND c2.timeframe = candles.timeframe
		  )`,
		string(tf), cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete candles: %w", err)
	}
	return res.RowsAffected()
}

// scanner is the common subset of sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCandle(row scanner) (model.Candle, error) {
	var (
		c       model.Candle
		tf      string
		ts      int64
		metrics string
	)
	err := row.Scan(&c.Symbol, &tf, &ts, &c.Open, &c.High, &c.Low, &c.Close,
		&c.Volume, &c.LatestPrice, &c.PriceChange, &metrics)
	if err != nil {
		return model.Candle{}, err
	}
	c.Timeframe = model.Timeframe(tf)
	c.TS = time.Unix(ts, 0).UTC()
	if err := json.Unmarshal([]byte(metrics), &c.Metrics); err != nil {
		return model.Candle{}, fmt.Errorf("sqlite: unmarshal metrics: %w", err)
	}
	return c, nil
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
