package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/model"
)

// UpsertSymbol inserts or refreshes a symbol from the directory sync.
// Listing fields (assets, 24h volume, fetch time) are overwritten; the
// tracker-owned fields last_trend and last_volume_alert are preserved.
func (s *Store) UpsertSymbol(sym model.Symbol) error {
	_, err := s.db.Exec(`
		INSERT INTO symbols (symbol, base_asset, quote_asset, volume24, last_fetched)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			base_asset   = excluded.base_asset,
			quote_asset  = excluded.quote_asset,
			volume24     = excluded.volume24,
			last_fetched = excluded.last_fetched`,
		sym.Symbol, sym.BaseAsset, sym.QuoteAsset, sym.Volume24h, nullUnix(sym.LastFetched),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert symbol %s: %w", sym.Symbol, err)
	}
	return nil
}

// Symbols returns all tracked symbols ordered by 24h volume, highest first.
func (s *Store) Symbols() ([]model.Symbol, error) {
	rows, err := s.db.Query(`
		SELECT symbol, base_asset, quote_asset, volume24, last_trend, last_volume_alert, last_fetched
		FROM symbols
		ORDER BY volume24 DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []model.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Symbol returns one symbol by its pair string. Returns ErrNotFound for
// unknown symbols; the pipeline drops events for those.
func (s *Store) Symbol(symbol string) (model.Symbol, error) {
	row := s.db.QueryRow(`
		SELECT symbol, base_asset, quote_asset, volume24, last_trend, last_volume_alert, last_fetched
		FROM symbols
		WHERE symbol = ?`, symbol)

	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return model.Symbol{}, ErrNotFound
	}
	if err != nil {
		return model.Symbol{}, fmt.Errorf("sqlite: get symbol: %w", err)
	}
	return sym, nil
}

// SetLastTrend records the detector's latest classification for a symbol.
// Written on every evaluation, alert or not.
func (s *Store) SetLastTrend(symbol string, trend model.Trend) error {
	_, err := s.db.Exec(`UPDATE symbols SET last_trend = ? WHERE symbol = ?`, string(trend), symbol)
	if err != nil {
		return fmt.Errorf("sqlite: set last trend: %w", err)
	}
	return nil
}

// SetLastVolumeAlert records the bar timestamp of the most recent volume
// spike alert, the dedup marker for that alert class.
func (s *Store) SetLastVolumeAlert(symbol string, ts time.Time) error {
	_, err := s.db.Exec(`UPDATE symbols SET last_volume_alert = ? WHERE symbol = ?`, ts.Unix(), symbol)
	if err != nil {
		return fmt.Errorf("sqlite: set last volume alert: %w", err)
	}
	return nil
}

// PruneSymbolsNotIn deletes symbols no longer present in the active listing.
// A nil/empty active set is a no-op rather than a full wipe — an empty
// exchangeInfo response must not destroy the directory.
func (s *Store) PruneSymbolsNotIn(active []string) (int64, error) {
	if len(active) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(active)-1) + "?"
	args := make([]interface{}, len(active))
	for i, sym := range active {
		args[i] = sym
	}

	res, err := s.db.Exec(
		`DELETE FROM symbols WHERE symbol NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune symbols: %w", err)
	}
	return res.RowsAffected()
}

func scanSymbol(row scanner) (model.Symbol, error) {
	var (
		sym         model.Symbol
		trend       sql.NullString
		volumeAlert sql.NullInt64
		fetched     sql.NullInt64
	)
	err := row.Scan(&sym.Symbol, &sym.BaseAsset, &sym.QuoteAsset, &sym.Volume24h,
		&trend, &volumeAlert, &fetched)
	if err != nil {
		return model.Symbol{}, err
	}
	if trend.Valid {
		sym.LastTrend = model.Trend(trend.String)
	}
	if volumeAlert.Valid {
		sym.LastVolumeAlert = time.Unix(volumeAlert.Int64, 0).UTC()
	}
	if fetched.Valid {
		sym.LastFetched = time.Unix(fetched.Int64, 0).UTC()
	}
	return sym, nil
}

func nullUnix(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
