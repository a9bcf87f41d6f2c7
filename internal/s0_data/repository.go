// Package s0_data reads the market-data tables (schema "data") that the
// analysis pipeline consumes. Rows are loaded by the external collectors;
// this package never writes them.
package s0_data

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// Querier is the read surface of pgxpool.Pool and pgx.Tx
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the pgx market-data source.
// ⭐ SSOT: 분석 파이프라인의 시장 데이터 조회는 여기서만
type Repository struct {
	db         Querier
	exclusions []string
	logger     *logger.Logger
}

var (
	_ contracts.MarketDataSource = (*Repository)(nil)
	_ contracts.BarSource        = (*Repository)(nil)
	_ contracts.UniverseSource   = (*Repository)(nil)
)

// NewRepository creates a Repository. Instruments whose name contains any of
// nameExclusions (case-insensitive) are left out of the universe and its count.
func NewRepository(db Querier, nameExclusions []string, log *logger.Logger) *Repository {
	return &Repository{
		db:         db,
		exclusions: append([]string(nil), nameExclusions...),
		logger:     log,
	}
}

// latestTradeDate returns the most recent trade date on or before date.
// ok is false when the table holds no such date.
func (r *Repository) latestTradeDate(ctx context.Context, date time.Time) (time.Time, bool, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT MAX(trade_date)
		FROM data.daily_prices
		WHERE trade_date <= $1
	`, date).Scan(&latest)
	if err != nil {
		return time.Time{}, false, err
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
