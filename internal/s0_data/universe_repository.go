package s0_data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/autoquant/backend/internal/contracts"
)

const universeFrom = `
	FROM data.daily_prices dp
	JOIN data.stocks s ON s.code = dp.stock_code
	LEFT JOIN data.market_cap mc ON mc.stock_code = dp.stock_code AND mc.trade_date = dp.trade_date
	WHERE dp.trade_date = $1 AND s.is_active
`

// CountInstruments counts the equity instruments priced on the latest session
// on or before date
func (r *Repository) CountInstruments(ctx context.Context, date time.Time) (int, error) {
	session, ok, err := r.latestTradeDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("latest trade date: %w", err)
	}
	if !ok {
		return 0, nil
	}

	filter, args := nameFilter("s.name", r.exclusions, 2)
	query := `SELECT COUNT(*)` + universeFrom + filter

	var n int
	if err := r.db.QueryRow(ctx, query, append([]any{session}, args...)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count instruments: %w", err)
	}
	return n, nil
}

// GetInstrumentUniverse returns the latest prices on or before date joined
// with reference and sector data, ordered by volume descending.
// Non-equity instruments are dropped by name pattern in the query itself.
// ⭐ SSOT: AI 스크리닝 대상 유니버스는 여기서만
func (r *Repository) GetInstrumentUniverse(ctx context.Context, date time.Time) ([]contracts.Instrument, error) {
	session, ok, err := r.latestTradeDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("latest trade date: %w", err)
	}
	if !ok {
		return nil, nil
	}

	filter, args := nameFilter("s.name", r.exclusions, 2)
	query := `
		SELECT s.code, s.name, COALESCE(s.market, ''), COALESCE(s.sector, ''),
			dp.close_price, dp.volume, COALESCE(mc.market_cap, 0),
			COALESCE((SELECT p.close_price
				FROM data.daily_prices p
				WHERE p.stock_code = dp.stock_code AND p.trade_date < dp.trade_date
				ORDER BY p.trade_date DESC
				LIMIT 1), 0)
	` + universeFrom + filter + `
		ORDER BY dp.volume DESC, s.code ASC
	`

	rows, err := r.db.Query(ctx, query, append([]any{session}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query instrument universe: %w", err)
	}
	defer rows.Close()

	var universe []contracts.Instrument
	for rows.Next() {
		var in contracts.Instrument
		var close, prevClose int64
		if err := rows.Scan(&in.Code, &in.Name, &in.Market, &in.Sector,
			&close, &in.Volume, &in.MarketCap, &prevClose); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		in.Price = float64(close)
		in.ChangePct = changePct(float64(close), float64(prevClose))
		universe = append(universe, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"session":     session.Format("2006-01-02"),
		"instruments": len(universe),
		"exclusions":  len(r.exclusions),
	}).Info("Instrument universe loaded")

	return universe, nil
}

// nameFilter renders one case-sensitive "AND column NOT LIKE $n" clause per
// pattern, numbering placeholders from argStart. A pattern starting with "^"
// matches a name prefix ("^ACE " drops "ACE 200" but keeps "에이스테크");
// any other pattern matches anywhere in the name.
func nameFilter(column string, patterns []string, argStart int) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(patterns))
	for _, p := range patterns {
		like, ok := likePattern(p)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "\n\t\tAND %s NOT LIKE $%d", column, argStart+len(args))
		args = append(args, like)
	}
	return sb.String(), args
}

// likePattern converts an exclusion pattern to its LIKE form
func likePattern(p string) (string, bool) {
	if prefix, ok := strings.CutPrefix(p, "^"); ok {
		if prefix == "" {
			return "", false
		}
		return escapeLike(prefix) + "%", true
	}
	if p == "" {
		return "", false
	}
	return "%" + escapeLike(p) + "%", true
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// changePct returns the % change from prev to close, 0 without a previous close
func changePct(close, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (close - prev) / prev * 100
}
