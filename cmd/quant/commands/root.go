package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "AutoQuant - 일일 종목 분석 시스템",
	Long: `AutoQuant Unified CLI

장 마감 후 5단계 분석 파이프라인으로 다음 거래일 매수 신호를 생성합니다.
데이터 확인 → 시장 분석 → AI 스크리닝 → 기술적 스크리닝 → 가격 산출

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant db migrate
  go run ./cmd/quant analyze run
  go run ./cmd/quant analyze latest
  go run ./cmd/quant api
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default: STRATEGY_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
