package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

// GetMarketFlows sums the per-instrument net buying for date by investor type.
// A date without flow rows returns nil.
// ⭐ SSOT: 시장 전체 수급 집계는 여기서만
func (r *Repository) GetMarketFlows(ctx context.Context, date time.Time) (*contracts.MarketFlows, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(foreign_net_value), 0)::float8,
			COALESCE(SUM(inst_net_value), 0)::float8,
			COALESCE(SUM(indiv_net_value), 0)::float8
		FROM data.investor_flow
		WHERE trade_date = $1
	`

	var n int
	f := contracts.MarketFlows{Date: date}
	if err := r.db.QueryRow(ctx, query, date).Scan(&n, &f.Foreign, &f.Institution, &f.Retail); err != nil {
		return nil, fmt.Errorf("query investor flows: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return &f, nil
}
