package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoquant/backend/internal/api"
	"github.com/wonny/autoquant/backend/internal/api/handlers"
	"github.com/wonny/autoquant/backend/internal/scheduler"
	"github.com/wonny/autoquant/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업과 다음 실행 시각
  run     - 특정 작업 즉시 실행 (동기)

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler start --with-api
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run daily_analysis`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- daily_analysis: 평일 18:30 (ANALYSIS_SCHEDULE), 재시도 없음
- stale_run_sweep: 매시 정각 (STALE_RUN_AFTER 보다 오래된 RUNNING 정리)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerWithAPI bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerStartCmd.Flags().BoolVar(&schedulerWithAPI, "with-api", false, "대시보드 API를 같은 프로세스에서 함께 실행")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== AutoQuant Scheduler ===")

	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	PrintSuccess("Scheduler started")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, cancel := signalContext()
	defer cancel()

	var apiErr chan error
	if schedulerWithAPI {
		router := api.NewRouter(handlers.NewAnalysisHandler(a.store, a.log), a.metrics, a.db.Ping, a.log)
		server := api.New(a.cfg, a.log, router)
		apiErr = make(chan error, 1)
		go func() { apiErr <- server.Run(ctx) }()
	}

	<-ctx.Done()
	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	if apiErr != nil {
		if err := <-apiErr; err != nil {
			return err
		}
	}
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	printJobs(sched)
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	now := time.Now()

	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		next := "-"
		if t, err := sched.NextRun(name, now); err == nil {
			next = t.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("  - %-18s %-18s retries=%d  next=%s\n", name, st.Schedule, st.MaxRetries, next)
	}
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Running job: %s\n", jobName)
	res, err := sched.RunNow(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !res.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempt(s) in %s: %s", jobName, res.Attempts, res.Duration.Round(time.Millisecond), res.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, res.Duration.Round(time.Millisecond)))
	return nil
}

// initScheduler wires the app and registers every job
func initScheduler() (*app, *scheduler.Scheduler, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(a.log, scheduler.WithLocation(time.Local))

	daily := jobs.NewDailyAnalysisJob(a.orch, a.cfg.Pipeline.Schedule, a.log)
	if err := sched.AddJob(daily); err != nil {
		a.Close()
		return nil, nil, err
	}
	if a.cfg.Pipeline.StaleRunAfter > 0 {
		if err := sched.AddJob(jobs.NewStaleRunJob(a.orch, a.cfg.Pipeline.StaleRunAfter, a.log)); err != nil {
			a.Close()
			return nil, nil, err
		}
	}
	return a, sched, nil
}
