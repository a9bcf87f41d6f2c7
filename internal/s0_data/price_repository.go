package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// GetDailyBars returns the instrument's bars in [start, end], oldest first
func (r *Repository) GetDailyBars(ctx context.Context, code string, start, end time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT stock_code, trade_date, open_price, high_price, low_price, close_price, volume
		FROM data.daily_prices
		WHERE stock_code = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.db.Query(ctx, query, code, start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily bars %s: %w", code, err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		var open, high, low, close int64
		if err := rows.Scan(&b.Code, &b.Date, &open, &high, &low, &close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan daily bar %s: %w", code, err)
		}
		// int64 -> float64 변환 (가격은 원 단위)
		b.Open = float64(open)
		b.High = float64(high)
		b.Low = float64(low)
		b.Close = float64(close)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetIndexBars returns up to n index bars ending at end, oldest first
func (r *Repository) GetIndexBars(ctx context.Context, index string, end time.Time, n int) ([]contracts.Bar, error) {
	query := `
		SELECT index_code, trade_date,
			open_price::float8, high_price::float8, low_price::float8, close_price::float8,
			COALESCE(volume, 0)::bigint
		FROM data.market_indices
		WHERE index_code = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, index, end, n)
	if err != nil {
		return nil, fmt.Errorf("query index bars %s: %w", index, err)
	}
	bars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.Bar, error) {
		var b contracts.Bar
		err := row.Scan(&b.Code, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan index bars %s: %w", index, err)
	}

	// 최신순 조회 → 오래된 순으로 뒤집기
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetSectorPerformance returns the average daily change (%) per sector for the
// session on date, measured against each instrument's previous close
func (r *Repository) GetSectorPerformance(ctx context.Context, date time.Time) (map[string]float64, error) {
	query := `
		WITH session AS (
			SELECT s.sector, dp.close_price,
				(SELECT p.close_price
				 FROM data.daily_prices p
				 WHERE p.stock_code = dp.stock_code AND p.trade_date < dp.trade_date
				 ORDER BY p.trade_date DESC
				 LIMIT 1) AS prev_close
			FROM data.daily_prices dp
			JOIN data.stocks s ON s.code = dp.stock_code
			WHERE dp.trade_date = $1 AND s.is_active AND COALESCE(s.sector, '') <> ''
		)
		SELECT sector,
			ROUND(AVG((close_price - prev_close)::numeric / prev_close * 100), 2)::float8
		FROM session
		WHERE prev_close > 0
		GROUP BY sector
	`

	rows, err := r.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("query sector performance: %w", err)
	}
	defer rows.Close()

	sectors := make(map[string]float64)
	for rows.Next() {
		var sector string
		var change float64
		if err := rows.Scan(&sector, &change); err != nil {
			return nil, fmt.Errorf("scan sector performance: %w", err)
		}
		sectors[sector] = change
	}
	return sectors, rows.Err()
}

// GetBreadth counts advancing, declining and unchanged instruments for the
// session on date. A session without rows returns nil.
func (r *Repository) GetBreadth(ctx context.Context, date time.Time) (*contracts.Breadth, error) {
	query := `
		WITH session AS (
			SELECT dp.close_price,
				(SELECT p.close_price
				 FROM data.daily_prices p
				 WHERE p.stock_code = dp.stock_code AND p.trade_date < dp.trade_date
				 ORDER BY p.trade_date DESC
				 LIMIT 1) AS prev_close
			FROM data.daily_prices dp
			WHERE dp.trade_date = $1
		)
		SELECT
			COUNT(*) FILTER (WHERE close_price > prev_close),
			COUNT(*) FILTER (WHERE close_price < prev_close),
			COUNT(*) FILTER (WHERE close_price = prev_close)
		FROM session
		WHERE prev_close IS NOT NULL
	`

	var b contracts.Breadth
	if err := r.db.QueryRow(ctx, query, date).Scan(&b.Advancing, &b.Declining, &b.Unchanged); err != nil {
		return nil, fmt.Errorf("query breadth: %w", err)
	}
	if b.Advancing+b.Declining+b.Unchanged == 0 {
		return nil, nil
	}
	return &b, nil
}
