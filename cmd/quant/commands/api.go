package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/autoquant/backend/internal/api"
	"github.com/wonny/autoquant/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "대시보드 API 서버 시작",
	Long: `분석 결과 조회용 읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET /health                          - Health check
  GET /metrics                         - Prometheus metrics
  GET /api/dashboard                   - 최근 완료 분석 + 시장 요약 + 신호
  GET /api/signals?limit=20            - 최신 pending 신호
  GET /api/runs?limit=30               - 분석 이력
  GET /api/runs/{id}                   - 분석 상세
  GET /api/runs/{id}/market            - 시장 스냅샷
  GET /api/runs/{id}/ai-candidates     - AI 후보
  GET /api/runs/{id}/technical         - 기술적 선정 종목
  GET /api/runs/{id}/signals           - 매수 신호

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	handler := handlers.NewAnalysisHandler(a.store, a.log)
	router := api.NewRouter(handler, a.metrics, a.db.Ping, a.log)
	server := api.New(a.cfg, a.log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, cancel := signalContext()
	defer cancel()

	if err := server.Run(ctx); err != nil {
		return err
	}
	a.log.Info("Server stopped")
	return nil
}
