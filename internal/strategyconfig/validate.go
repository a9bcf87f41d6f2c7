package strategyconfig

import (
	"fmt"
	"math"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Market ===
	if cfg.Market.IndexHistoryBars < 27 {
		return ValidationError{"market.index_history_bars", "must be >= 27 for MACD"}
	}
	if cfg.Market.TrendDays <= 0 || cfg.Market.TrendLookback < cfg.Market.TrendDays {
		return ValidationError{"market.trend_lookback_days", "must be >= trend_days > 0"}
	}
	if cfg.Market.TopSectors <= 0 {
		return ValidationError{"market.top_sectors", "must be > 0"}
	}

	// === AI screening ===
	ai := cfg.AIScreening
	if ai.PromptTopK <= 0 {
		return ValidationError{"ai_screening.prompt_top_k", "must be > 0"}
	}
	if ai.NameMaxLen <= 0 {
		return ValidationError{"ai_screening.name_max_len", "must be > 0"}
	}
	if ai.TargetMin <= 0 || ai.TargetMin > ai.TargetMax {
		return ValidationError{"ai_screening.target_min", "must satisfy 0 < target_min <= target_max"}
	}
	if err := validatePctRange(ai.DetailedPromptAbove, "ai_screening.detailed_prompt_above"); err != nil {
		return err
	}

	// === Technical ===
	t := cfg.Technical
	if t.MinBars < 26 {
		return ValidationError{"technical.min_bars", "must be >= 26"}
	}
	if t.MinSelections <= 0 || t.MinSelections > t.MaxSelections {
		return ValidationError{"technical", "must satisfy 0 < min_selections <= max_selections"}
	}
	if t.SelectionDivisor <= 0 {
		return ValidationError{"technical.selection_divisor", "must be > 0"}
	}
	if math.Abs(t.TechnicalWeight+t.AIWeight-1.0) > 1e-6 {
		return ValidationError{"technical", fmt.Sprintf("technical_weight + ai_weight must equal 1.0, got %.4f", t.TechnicalWeight+t.AIWeight)}
	}

	// === Pricing ===
	p := cfg.Pricing
	if p.MinBars < p.Lookback {
		return ValidationError{"pricing.min_bars", "must be >= lookback"}
	}
	if p.SwingHalfWidth <= 0 || p.SwingCount <= 0 {
		return ValidationError{"pricing.swing", "swing_half_width and swing_count must be > 0"}
	}
	if p.Premium.Min > p.Premium.Base || p.Premium.Base > p.Premium.Max {
		return ValidationError{"pricing.entry_premium", "must satisfy min <= base <= max"}
	}
	if p.StopSupportRatio >= 1 || p.StopBuyRatio >= 1 {
		return ValidationError{"pricing", "stop ratios must be < 1"}
	}
	if p.MinRiskReward <= 0 {
		return ValidationError{"pricing.min_risk_reward", "must be > 0"}
	}
	// widen 후 RR은 widen_multiple 이상이어야 floor를 만족
	if p.WidenMultiple < p.MinRiskReward {
		return ValidationError{"pricing.widen_multiple", "must be >= min_risk_reward"}
	}
	if p.Granularity <= 0 {
		return ValidationError{"pricing.granularity", "must be > 0"}
	}
	if p.Predictor != "technical" && p.Predictor != "none" {
		return ValidationError{"pricing.predictor", "must be technical or none"}
	}

	return nil
}

func validatePctRange(v float64, field string) error {
	if v < 0 || v > 1 {
		return ValidationError{field, fmt.Sprintf("must be in [0, 1], got %.4f", v)}
	}
	return nil
}
