package commands

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wonny/autoquant/backend/internal/brain"
	"github.com/wonny/autoquant/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

var won = message.NewPrinter(language.Korean)

// PrintRunResult prints the run header and outcome
func PrintRunResult(res *brain.RunResult) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Println("  Daily Analysis")
	PrintSeparator()
	if res.RunID != 0 {
		fmt.Printf("  Run ID    : #%d\n", res.RunID)
	}
	fmt.Printf("  Trace     : %s\n", res.TraceID)
	fmt.Printf("  Date      : %s → %s\n", res.RunDate.Format("2006-01-02"), res.TargetTradeDate.Format("2006-01-02"))
	fmt.Printf("  Status    : %s\n", res.Status)
	fmt.Printf("  Counts    : analyzed %d · ai %d · technical %d · signals %d\n",
		res.Counts.TotalStocksAnalyzed, res.Counts.AICandidates, res.Counts.TechnicalSelections, res.Counts.FinalSignals)
	fmt.Printf("  Duration  : %.2fs\n", res.Duration.Seconds())
	PrintSeparator()

	if res.Success {
		PrintSuccess(fmt.Sprintf("Run #%d completed", res.RunID))
		return
	}
	PrintError(fmt.Sprintf("Failed in %s [%s]: %s", orDash(res.ErrorPhase), orDash(string(res.ErrorKind)), res.Message))
}

// PrintSignalsTable prints signals as a fixed-width table
func PrintSignalsTable(signals []contracts.TradingSignal) {
	if len(signals) == 0 {
		PrintInfo("No trading signals")
		return
	}
	widths := []int{8, 16, 10, 10, 10, 10, 6, 8}
	PrintTableHeader([]string{"Code", "Name", "Current", "Buy", "Target", "Stop", "R/R", "Return"}, widths)
	for _, s := range signals {
		PrintTableRow([]string{
			s.Code,
			truncate(s.Name, widths[1]),
			formatPrice(s.CurrentPrice),
			formatPrice(s.BuyPrice),
			formatPrice(s.TargetPrice),
			formatPrice(s.StopLossPrice),
			fmt.Sprintf("%.2f", s.RiskRewardRatio),
			fmt.Sprintf("%+.2f%%", s.PredictedReturn),
		}, widths)
	}
	fmt.Println()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// formatPrice renders a won price with thousands separators
func formatPrice(p float64) string {
	return won.Sprintf("%.0f", p)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
