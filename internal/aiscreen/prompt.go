package aiscreen

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/strategyconfig"
)

// 천 단위 구분 기호 (2,618 / +1,200,000,000)
var numbers = message.NewPrinter(language.English)

// PromptKind identifies which prompt template was used
type PromptKind string

const (
	PromptDetailed PromptKind = "detailed"
	PromptCompact  PromptKind = "compact"
)

// Prompt is a built screening prompt
type Prompt struct {
	Kind      PromptKind
	Text      string
	StockRows int
}

// BuildPrompt builds the screening prompt.
// Detailed template when signal convergence exceeds cfg.DetailedPromptAbove.
func BuildPrompt(snap *contracts.MarketSnapshot, universe []contracts.Instrument, cfg strategyconfig.AIScreening) Prompt {
	marketCtx := formatMarketContext(snap)
	stocks, rows := formatStockData(universe, cfg.PromptTopK, cfg.NameMaxLen)
	sentiment := sentimentOf(snap)
	target := fmt.Sprintf("%d-%d", cfg.TargetMin, cfg.TargetMax)

	if snap.SignalConvergence > cfg.DetailedPromptAbove {
		return Prompt{
			Kind:      PromptDetailed,
			Text:      detailedPrompt(marketCtx, stocks, sentiment, target, rows, len(universe)),
			StockRows: rows,
		}
	}
	return Prompt{
		Kind:      PromptCompact,
		Text:      compactPrompt(marketCtx, stocks, sentiment, target, rows),
		StockRows: rows,
	}
}

func detailedPrompt(marketCtx, stocks string, sentiment contracts.Sentiment, target string, rows, total int) string {
	var b strings.Builder
	b.WriteString("You are an expert Korean stock market analyst with 20+ years of experience in KRX market trading.\n\n")
	b.WriteString(marketCtx)
	b.WriteString("\nSCREENING OBJECTIVE:\n")
	fmt.Fprintf(&b, "From %s Korean stocks, identify TOP %s candidates with highest probability of:\n", numbers.Sprintf("%d", total), target)
	b.WriteString("1. Positive return in the next trading session\n")
	b.WriteString("2. Strong technical and fundamental setup\n\n")
	b.WriteString("SELECTION CRITERIA (weighted by importance):\n")
	fmt.Fprintf(&b, "1. Market Alignment (30%%): Stocks moving WITH the current %s trend\n", sentiment)
	b.WriteString("2. Momentum Strength (25%): RSI, volume action, price momentum\n")
	b.WriteString("3. Investor Flow Confirmation (20%): Aligned with foreign/institutional buying/selling\n")
	b.WriteString("4. Sector Strength (15%): In sectors outperforming the market\n")
	b.WriteString("5. Technical Setup (10%): Bullish patterns (support breaks, moving average crosses)\n\n")
	fmt.Fprintf(&b, "STOCK DATA (Top %d by volume - Total %s stocks available):\n", rows, numbers.Sprintf("%d", total))
	b.WriteString(stocks)
	b.WriteString("\n\nRESPONSE REQUIREMENTS:\nReturn a JSON object with:\n")
	b.WriteString(`{
  "market_analysis": "Your brief market assessment (2-3 sentences)",
  "selection_reasoning": "Why these stocks were selected (3-4 sentences)",
  "candidates": [
    {
      "code": "005930",
      "name": "삼성전자",
      "confidence": 85,
      "reason": "Sector strength (IT +1.8%), foreign buying (+3.2B), RSI=58",
      "signals": ["foreign_buying", "sector_outperform", "bullish_momentum"]
    }
  ]
}
`)
	b.WriteString("\nCRITICAL CONSTRAINTS:\n")
	fmt.Fprintf(&b, "- Select %s stocks\n", target)
	b.WriteString("- All stock codes MUST exist in provided list\n")
	b.WriteString("- Confidence scores must be realistic (mix of 60-90, not all 90+)\n")
	b.WriteString("- Provide specific, actionable reasoning for EACH selection\n")
	b.WriteString("- Focus on next trading day opportunity, not long-term value\n")
	return b.String()
}

func compactPrompt(marketCtx, stocks string, sentiment contracts.Sentiment, target string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock analyst: Given current market (%s),\nselect %s best trading candidates from provided stocks.\n\n", sentiment, target)
	b.WriteString(marketCtx)
	b.WriteString("\nCriteria:\n- Market aligned\n- Strong volume\n- Technical setup\n- Foreign/Institutional buying\n\n")
	fmt.Fprintf(&b, "Stocks (Top %d):\n", rows)
	b.WriteString(stocks)
	b.WriteString("\n\nReturn JSON: {\n  \"analysis\": \"Brief assessment\",\n")
	b.WriteString("  \"candidates\": [{\"code\": \"005930\", \"name\": \"삼성전자\", \"confidence\": 75, \"reason\": \"Strong setup\"}]\n}\n\n")
	fmt.Fprintf(&b, "MUST select %s stocks from provided list.", target)
	return b.String()
}

func formatMarketContext(snap *contracts.MarketSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== TODAY'S MARKET CONTEXT (%s) ===\n\n", snap.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Market Sentiment: %s (Confidence: %.0f%%)\n", sentimentOf(snap), snap.SignalConvergence*100)
	fmt.Fprintf(&b, "KOSPI: %s (%+.2f%%)\n", numbers.Sprintf("%.0f", snap.KOSPIClose), snap.KOSPIChangePct)
	fmt.Fprintf(&b, "KOSDAQ: %s (%+.2f%%)\n\n", numbers.Sprintf("%.0f", snap.KOSDAQClose), snap.KOSDAQChangePct)

	b.WriteString("Investor Flows:\n")
	fmt.Fprintf(&b, "- Foreign: %s KRW\n", signed(snap.ForeignNet))
	fmt.Fprintf(&b, "- Institutional: %s KRW\n", signed(snap.InstitutionNet))
	fmt.Fprintf(&b, "- Retail: %s KRW\n\n", signed(snap.RetailNet))

	top := "N/A"
	if len(snap.TopSectors) > 0 {
		top = strings.Join(snap.TopSectors, ", ")
	}
	b.WriteString("Market Indicators:\n")
	fmt.Fprintf(&b, "- Advance/Decline Ratio: %.2f\n", snap.AdvanceDeclineRatio)
	fmt.Fprintf(&b, "- Market Trend: %s\n", snap.KOSPITrend)
	fmt.Fprintf(&b, "- Momentum Score: %d/100\n", snap.MomentumScore)
	fmt.Fprintf(&b, "- Top Performing Sectors: %s\n\n", top)

	b.WriteString("Technical Signals:\n")
	fmt.Fprintf(&b, "- RSI (Market): %.0f\n", snap.IndexRSI)
	fmt.Fprintf(&b, "- MACD: %s\n", orDefault(snap.MACDDirection, "NEUTRAL"))
	fmt.Fprintf(&b, "- Signal Convergence: %.2f/1.0\n", snap.SignalConvergence)
	return b.String()
}

// formatStockData renders the topK instruments by volume as pipe-delimited rows
func formatStockData(universe []contracts.Instrument, topK, nameMax int) (string, int) {
	if len(universe) == 0 {
		return "No stock data available", 0
	}

	ranked := TopByVolume(universe, topK)

	var b strings.Builder
	b.WriteString("Code|Name|Sector|Price|Change%|Market Cap|Volume\n")
	for i, s := range ranked {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s|%s|%s|%s|%+.1f|%s|%s",
			strings.TrimSpace(s.Code),
			truncateName(strings.TrimSpace(s.Name), nameMax),
			orDefault(s.Sector, "-"),
			numbers.Sprintf("%.0f", s.Price),
			s.ChangePct,
			numbers.Sprintf("%d", s.MarketCap),
			numbers.Sprintf("%d", s.Volume),
		)
	}
	return b.String(), len(ranked)
}

// TopByVolume returns at most k instruments ordered by volume, highest first.
// Ties keep code order so the prompt is stable for identical inputs.
func TopByVolume(universe []contracts.Instrument, k int) []contracts.Instrument {
	ranked := append([]contracts.Instrument(nil), universe...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Volume != ranked[j].Volume {
			return ranked[i].Volume > ranked[j].Volume
		}
		return ranked[i].Code < ranked[j].Code
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// truncateName cuts by rune so Hangul names are never split mid-character
func truncateName(name string, max int) string {
	if max <= 0 {
		return name
	}
	r := []rune(name)
	if len(r) <= max {
		return name
	}
	return string(r[:max])
}

func signed(v float64) string {
	if v >= 0 {
		return "+" + numbers.Sprintf("%.0f", v)
	}
	return "-" + numbers.Sprintf("%.0f", -v)
}

func sentimentOf(snap *contracts.MarketSnapshot) contracts.Sentiment {
	if snap.Sentiment == "" {
		return "UNKNOWN"
	}
	return snap.Sentiment
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
