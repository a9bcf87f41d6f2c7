package config_test

import (
	"fmt"

	"github.com/wonny/autoquant/backend/pkg/config"
)

// Example shows the settings the daily analysis reads at startup
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	// 완료 서비스: 타임아웃 + 재시도 상한
	fmt.Printf("AI: %s/%s timeout=%s retries=%d\n",
		cfg.AI.Provider, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.Retries)

	// 파이프라인: 전략 파일, 스케줄, stale run 기준
	fmt.Printf("Pipeline: strategy=%q schedule=%q stale_after=%s\n",
		cfg.Pipeline.StrategyConfigPath, cfg.Pipeline.Schedule, cfg.Pipeline.StaleRunAfter)
}
