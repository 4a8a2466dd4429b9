package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"cryptotracker/internal/model"
)

// CreateAlert persists a new alert and returns it with its assigned id.
func (s *Store) CreateAlert(a model.Alert) (model.Alert, error) {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := s.db.Exec(`
		INSERT INTO alerts
			(symbol, trend, previous_trend, entry, stop_loss, tp1, tp2, tp3,
			 highest_price, lowest_price, result, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Symbol, string(a.Trend), nullTrend(a.PreviousTrend),
		a.Entry, a.StopLoss, a.TP1, a.TP2, a.TP3,
		nullFloat(a.HighestPrice), nullFloat(a.LowestPrice), nullResult(a.Result),
		string(a.Status), a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		return model.Alert{}, fmt.Errorf("sqlite: create alert %s: %w", a.Symbol, err)
	}

	a.ID, err = res.LastInsertId()
	if err != nil {
		return model.Alert{}, fmt.Errorf("sqlite: alert id: %w", err)
	}
	return a, nil
}

// UpdateAlert persists the mutable fields of an alert after an evaluation
// tick: running extrema, result code and status.
func (s *Store) UpdateAlert(a model.Alert) error {
	_, err := s.db.Exec(`
		UPDATE alerts
		SET highest_price = ?, lowest_price = ?, result = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		nullFloat(a.HighestPrice), nullFloat(a.LowestPrice), nullResult(a.Result),
		string(a.Status), time.Now().UTC().Unix(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update alert %d: %w", a.ID, err)
	}
	return nil
}

// ActiveAlerts returns all alerts with status open or partial, oldest first.
func (s *Store) ActiveAlerts() ([]model.Alert, error) {
	return s.queryAlerts(`
		SELECT id, symbol, trend, previous_trend, entry, stop_loss, tp1, tp2, tp3,
		       highest_price, lowest_price, result, status, created_at, updated_at
		FROM alerts
		WHERE status IN ('open', 'partial')
		ORDER BY id`)
}

// ClosedAlerts returns all terminal alerts, newest first. Used by the
// performance report.
func (s *Store) ClosedAlerts() ([]model.Alert, error) {
	return s.queryAlerts(`
		SELECT id, symbol, trend, previous_trend, entry, stop_loss, tp1, tp2, tp3,
		       highest_price, lowest_price, result, status, created_at, updated_at
		FROM alerts
		WHERE status = 'closed'
		ORDER BY created_at DESC`)
}

func (s *Store) queryAlerts(query string, args ...interface{}) ([]model.Alert, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a         model.Alert
			trend     string
			prevTrend sql.NullString
			highest   sql.NullFloat64
			lowest    sql.NullFloat64
			result    sql.NullInt64
			status    string
			created   int64
			updated   int64
		)
		err := rows.Scan(&a.ID, &a.Symbol, &trend, &prevTrend,
			&a.Entry, &a.StopLoss, &a.TP1, &a.TP2, &a.TP3,
			&highest, &lowest, &result, &status, &created, &updated)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan alert: %w", err)
		}
		a.Trend = model.Trend(trend)
		if prevTrend.Valid {
			a.PreviousTrend = model.Trend(prevTrend.String)
		}
		a.HighestPrice = highest.Float64
		a.LowestPrice = lowest.Float64
		a.Result = int(result.Int64)
		a.Status = model.AlertStatus(status)
		a.CreatedAt = time.Unix(created, 0).UTC()
		a.UpdatedAt = time.Unix(updated, 0).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func nullTrend(t model.Trend) interface{} {
	if t == "" {
		return nil
	}
	return string(t)
}

func nullFloat(v float64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullResult(r int) interface{} {
	if r == 0 {
		return nil
	}
	return r
}
