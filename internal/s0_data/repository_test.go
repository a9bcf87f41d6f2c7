package s0_data

import (
	"context"
	_ "embed"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/config"
	"github.com/wonny/autoquant/backend/pkg/database"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

//go:embed testdata/schema.sql
var testSchema string

func TestNameFilter(t *testing.T) {
	clause, args := nameFilter("s.name", []string{"ETF", "", "100%_우", "^ACE ", "^"}, 2)

	assert.Equal(t, "\n\t\tAND s.name NOT LIKE $2\n\t\tAND s.name NOT LIKE $3\n\t\tAND s.name NOT LIKE $4", clause)
	assert.Equal(t, []any{"%ETF%", `%100\%\_우%`, "ACE %"}, args)
}

// likeMatch evaluates a LIKE pattern built by likePattern the way Postgres does
func likeMatch(pattern, name string) bool {
	var re strings.Builder
	re.WriteString("^")
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			re.WriteString(regexp.QuoteMeta(string(c)))
			escaped = false
		case c == '\\':
			escaped = true
		case c == '%':
			re.WriteString("(?s:.*)")
		case c == '_':
			re.WriteString("(?s:.)")
		default:
			re.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re.WriteString("$")
	return regexp.MustCompile(re.String()).MatchString(name)
}

func TestLikeMatch(t *testing.T) {
	assert.True(t, likeMatch(`%100\%\_우%`, "KB 100%_우선주"))
	assert.False(t, likeMatch(`%100\%\_우%`, "KB 1000x우선주"))
}

func TestDefaultNameExclusions(t *testing.T) {
	excluded := func(name string) bool {
		for _, p := range strategyconfig.DefaultNameExclusions {
			if like, ok := likePattern(p); ok && likeMatch(like, name) {
				return true
			}
		}
		return false
	}

	for _, name := range []string{"KODEX 200", "TIGER 미국S&P500", "ACE 골드선물", "KOSEF 국고채10년", "신한 인버스 2X 원유선물 ETN", "미래에셋 TIGER ETF"} {
		assert.True(t, excluded(name), name)
	}
	for _, name := range []string{"삼성전자", "에이스테크", "Space ACE", "Space Tiger", "한국항공우주", "ACETECH", "TIGERS"} {
		assert.False(t, excluded(name), name)
	}
}

func TestNameFilter_Empty(t *testing.T) {
	clause, args := nameFilter("s.name", nil, 2)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestChangePct(t *testing.T) {
	assert.InDelta(t, 10.0, changePct(11000, 10000), 1e-9)
	assert.InDelta(t, -5.0, changePct(19000, 20000), 1e-9)
	assert.Equal(t, 0.0, changePct(5000, 0))
}

// Integration tests below run inside a rolled-back transaction
func openTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := database.New(&config.Config{Database: config.DatabaseConfig{
		URL:             url,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MaxConnIdleTime: time.Minute,
	}})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ctx := context.Background()
	tx, err := db.Pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })

	_, err = tx.Exec(ctx, testSchema)
	require.NoError(t, err)
	seed(t, tx)
	return tx
}

func day(d int) time.Time {
	return time.Date(1999, 3, d, 0, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, tx pgx.Tx) {
	t.Helper()
	ctx := context.Background()

	exec := func(sql string, args ...any) {
		_, err := tx.Exec(ctx, sql, args...)
		require.NoError(t, err)
	}

	for _, s := range []struct {
		code, name, sector string
		active             bool
	}{
		{"T00001", "테스트전자", "IT", true},
		{"T00002", "테스트화학", "Chemical", true},
		{"T00003", "KODEX 200", "", true},
		{"T00004", "상장폐지", "IT", false},
	} {
		exec(`INSERT INTO data.stocks (code, name, market, sector, is_active) VALUES ($1, $2, 'KOSPI', $3, $4)`,
			s.code, s.name, s.sector, s.active)
	}

	for _, p := range []struct {
		code   string
		date   time.Time
		close  int64
		volume int64
	}{
		{"T00001", day(2), 10000, 400},
		{"T00001", day(3), 11000, 500},
		{"T00002", day(2), 20000, 800},
		{"T00002", day(3), 19000, 900},
		{"T00003", day(2), 30000, 2000},
		{"T00003", day(3), 30000, 2000},
		{"T00004", day(3), 5000, 100},
	} {
		exec(`INSERT INTO data.daily_prices (stock_code, trade_date, open_price, high_price, low_price, close_price, volume)
			VALUES ($1, $2, $3, $3, $3, $3, $4)`, p.code, p.date, p.close, p.volume)
	}

	exec(`INSERT INTO data.market_cap (stock_code, trade_date, market_cap) VALUES ('T00001', $1, 1000000000000)`, day(3))
	exec(`INSERT INTO data.investor_flow (stock_code, trade_date, foreign_net_value, inst_net_value, indiv_net_value)
		VALUES ('T00001', $1, 100, 50, -150), ('T00002', $1, -30, 10, 20)`, day(3))
	for i, c := range []float64{600, 610, 620} {
		exec(`INSERT INTO data.market_indices (index_code, trade_date, open_price, high_price, low_price, close_price, volume)
			VALUES ('KOSPI', $1, $2, $2, $2, $2, 1000)`, day(i+1), c)
	}
}

func TestRepository_Universe(t *testing.T) {
	tx := openTestTx(t)
	repo := NewRepository(tx, strategyconfig.DefaultNameExclusions, logger.Nop())
	ctx := context.Background()

	n, err := repo.CountInstruments(ctx, day(4))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ETF and inactive instruments are not counted")

	universe, err := repo.GetInstrumentUniverse(ctx, day(4))
	require.NoError(t, err)
	require.Len(t, universe, 2)

	assert.Equal(t, "T00002", universe[0].Code, "volume descending")
	assert.InDelta(t, -5.0, universe[0].ChangePct, 1e-9)
	assert.Equal(t, "T00001", universe[1].Code)
	assert.Equal(t, "테스트전자", universe[1].Name)
	assert.Equal(t, "IT", universe[1].Sector)
	assert.Equal(t, 11000.0, universe[1].Price)
	assert.Equal(t, int64(1000000000000), universe[1].MarketCap)
}

func TestRepository_MarketData(t *testing.T) {
	tx := openTestTx(t)
	repo := NewRepository(tx, nil, logger.Nop())
	ctx := context.Background()

	sectors, err := repo.GetSectorPerformance(ctx, day(3))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"IT": 10, "Chemical": -5}, sectors)

	breadth, err := repo.GetBreadth(ctx, day(3))
	require.NoError(t, err)
	assert.Equal(t, &contracts.Breadth{Advancing: 1, Declining: 1, Unchanged: 1}, breadth)

	empty, err := repo.GetBreadth(ctx, day(6))
	require.NoError(t, err)
	assert.Nil(t, empty)

	flows, err := repo.GetMarketFlows(ctx, day(3))
	require.NoError(t, err)
	require.NotNil(t, flows)
	assert.Equal(t, 70.0, flows.Foreign)
	assert.Equal(t, 60.0, flows.Institution)
	assert.Equal(t, -130.0, flows.Retail)

	none, err := repo.GetMarketFlows(ctx, day(6))
	require.NoError(t, err)
	assert.Nil(t, none)

	index, err := repo.GetIndexBars(ctx, contracts.IndexKOSPI, day(3), 2)
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, 610.0, index[0].Close)
	assert.Equal(t, 620.0, index[1].Close)

	bars, err := repo.GetDailyBars(ctx, "T00001", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 10000.0, bars[0].Close)
	assert.Equal(t, 11000.0, bars[1].Close)
}
