package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoquant/backend/internal/analysisdb"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "데이터베이스 관리",
	Long: `분석 결과 스키마(analysis.*)를 생성하고 연결 상태를 확인합니다.

Example:
  go run ./cmd/quant db migrate
  go run ./cmd/quant db check`,
}

var (
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "analysis 스키마 생성 (idempotent)",
		RunE:  runMigrate,
	}

	dbCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "연결 및 풀 상태 확인",
		RunE:  runDBCheck,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbCheckCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := analysisdb.Migrate(ctx, a.db.Pool); err != nil {
		return err
	}
	a.log.Info("Analysis schema migrated")
	PrintSuccess("analysis schema is up to date")
	return nil
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := a.db.HealthCheck(ctx)
	if err != nil {
		PrintError(fmt.Sprintf("Database unhealthy: %v", err))
		return err
	}

	PrintSuccess(fmt.Sprintf("Database healthy (%s)", status.ResponseTime))
	fmt.Printf("   Connections: %d total, %d acquired, %d idle, %d max\n",
		status.Stats.TotalConns, status.Stats.AcquiredConns, status.Stats.IdleConns, status.Stats.MaxConns)

	n, err := a.store.CountRunsForDate(ctx, time.Now())
	if err != nil {
		PrintWarning("analysis schema missing, run `quant db migrate`")
		return nil
	}
	fmt.Printf("   Runs today : %d\n", n)
	return nil
}
