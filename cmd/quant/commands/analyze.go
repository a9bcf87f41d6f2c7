package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoquant/backend/internal/analysisdb"
	"github.com/wonny/autoquant/backend/internal/brain"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
	"github.com/wonny/autoquant/backend/pkg/config"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "일일 분석 파이프라인",
	Long: `5단계 분석 파이프라인을 실행하거나 결과를 조회합니다.

Subcommands:
  run        - 분석 실행 (phase1 ~ phase5)
  latest     - 최근 완료된 분석의 매수 신호
  reconcile  - 중단된 RUNNING 분석을 FAILED로 정리
  config     - 적용될 전략 설정과 해시

Example:
  go run ./cmd/quant analyze run
  go run ./cmd/quant analyze run --date 2024-10-18
  go run ./cmd/quant analyze latest`,
}

var (
	analyzeRunCmd = &cobra.Command{
		Use:   "run",
		Short: "분석 실행",
		Long: `데이터 확인 → 시장 분석 → AI 스크리닝 → 기술적 스크리닝 → 가격 산출.

각 단계 결과는 완료 즉시 저장되며, 실패 시 error_phase에 실패 단계가 기록됩니다.

Flags:
  --date     분석 기준일 (기본: 오늘)
  --target   매수 대상 거래일 (기본: 다음 영업일)
  --json     결과를 JSON으로 출력`,
		RunE: runAnalyze,
	}

	analyzeLatestCmd = &cobra.Command{
		Use:   "latest",
		Short: "최근 완료된 분석의 매수 신호",
		RunE:  showLatest,
	}

	analyzeReconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "중단된 분석 정리",
		RunE:  runReconcile,
	}

	analyzeConfigCmd = &cobra.Command{
		Use:   "config",
		Short: "전략 설정 확인",
		RunE:  showStrategyConfig,
	}

	// Flags
	analyzeDate      string
	analyzeTarget    string
	analyzeJSON      bool
	reconcileOlder   time.Duration
	latestSignalRows int
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeRunCmd)
	analyzeCmd.AddCommand(analyzeLatestCmd)
	analyzeCmd.AddCommand(analyzeReconcileCmd)
	analyzeCmd.AddCommand(analyzeConfigCmd)

	analyzeRunCmd.Flags().StringVar(&analyzeDate, "date", "", "분석 기준일 (YYYY-MM-DD)")
	analyzeRunCmd.Flags().StringVar(&analyzeTarget, "target", "", "매수 대상 거래일 (YYYY-MM-DD)")
	analyzeRunCmd.Flags().BoolVar(&analyzeJSON, "json", false, "JSON 출력")

	analyzeLatestCmd.Flags().IntVar(&latestSignalRows, "limit", 20, "최대 신호 수")

	analyzeReconcileCmd.Flags().DurationVar(&reconcileOlder, "older-than", 0, "이보다 오래된 RUNNING 분석 (기본: STALE_RUN_AFTER)")
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// signalContext cancels on Ctrl+C / SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	date, err := parseDate(analyzeDate)
	if err != nil {
		return err
	}
	target, err := parseDate(analyzeTarget)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res := a.orch.RunDailyAnalysis(ctx, brain.RunConfig{Date: date, TargetTradeDate: target})

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		PrintRunResult(res)
		if res.Success {
			PrintSignalsTable(res.Signals)
		}
		costs := a.llm.Costs()
		PrintInfo(fmt.Sprintf("Completion cost: $%.4f (%d calls, %d cached, daily budget $%.2f)",
			costs.TotalCostUSD, costs.TotalCalls, costs.CachedCalls, costs.DailyBudget))
	}

	if !res.Success {
		return fmt.Errorf("analysis failed in %s", res.ErrorPhase)
	}
	return nil
}

func showLatest(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	run, err := a.store.LatestCompletedRun(ctx)
	if errors.Is(err, analysisdb.ErrNotFound) {
		PrintWarning("No completed analysis run yet")
		return nil
	}
	if err != nil {
		return err
	}
	signals, err := a.store.GetSignals(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(signals) > latestSignalRows {
		signals = signals[:latestSignalRows]
	}

	PrintDoubleSeparator()
	fmt.Printf("  Run #%d  %s → %s\n", run.ID, run.RunDate.Format("2006-01-02"), run.TargetTradeDate.Format("2006-01-02"))
	fmt.Printf("  Analyzed %d · AI %d · Technical %d · Signals %d\n",
		run.TotalStocksAnalyzed, run.AICandidatesCount, run.TechnicalSelectionsCount, run.FinalSignalsCount)
	PrintDoubleSeparator()
	PrintSignalsTable(signals)
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	olderThan := reconcileOlder
	if olderThan <= 0 {
		olderThan = a.cfg.Pipeline.StaleRunAfter
	}

	orch := brain.NewOrchestrator(brain.Deps{Store: a.store, Logger: a.log})
	ctx, cancel := signalContext()
	defer cancel()

	n, err := orch.ReconcileStaleRuns(ctx, olderThan)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Reconciled %d stale run(s) older than %s", n, olderThan))
	return nil
}

func showStrategyConfig(cmd *cobra.Command, args []string) error {
	path := strategyFile
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Pipeline.StrategyConfigPath
	}
	cfg, data, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		return err
	}
	snap, err := strategyconfig.NewDecisionSnapshot(cfg, data)
	if err != nil {
		return err
	}

	PrintDoubleSeparator()
	fmt.Printf("  Strategy : %s\n", snap.StrategyID)
	fmt.Printf("  Source   : %s\n", strategySource(path))
	fmt.Printf("  Hash     : %s\n", snap.ConfigHash)
	PrintDoubleSeparator()
	fmt.Println(snap.ConfigYAML)
	return nil
}
