package strategyconfig

import "time"

// Config는 분석 파이프라인의 전체 파라미터
type Config struct {
	Meta        Meta        `yaml:"meta" json:"meta"`
	Market      Market      `yaml:"market" json:"market"`
	AIScreening AIScreening `yaml:"ai_screening" json:"ai_screening"`
	Technical   Technical   `yaml:"technical" json:"technical"`
	Pricing     Pricing     `yaml:"pricing" json:"pricing"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"`
}

// Market phase 2: 시장 분석
type Market struct {
	// RSI/MACD, 거래량 비율 계산용 지수 이력
	IndexHistoryBars int `yaml:"index_history_bars" json:"index_history_bars"`
	TrendDays        int `yaml:"trend_days" json:"trend_days"`
	TrendLookback    int `yaml:"trend_lookback_days" json:"trend_lookback_days"`
	TopSectors       int `yaml:"top_sectors" json:"top_sectors"`
}

// AIScreening phase 3: 후보 선별
type AIScreening struct {
	PromptTopK          int      `yaml:"prompt_top_k" json:"prompt_top_k"`
	NameMaxLen          int      `yaml:"name_max_len" json:"name_max_len"`
	TargetMin           int      `yaml:"target_min" json:"target_min"`
	TargetMax           int      `yaml:"target_max" json:"target_max"`
	DetailedPromptAbove float64  `yaml:"detailed_prompt_above" json:"detailed_prompt_above"`
	ExcludeNamePatterns []string `yaml:"exclude_name_patterns" json:"exclude_name_patterns"`
}

// Technical phase 4: 기술적 스크리닝
type Technical struct {
	MinBars          int     `yaml:"min_bars" json:"min_bars"`
	HistoryDays      int     `yaml:"history_days" json:"history_days"`
	MinSelections    int     `yaml:"min_selections" json:"min_selections"`
	MaxSelections    int     `yaml:"max_selections" json:"max_selections"`
	SelectionDivisor int     `yaml:"selection_divisor" json:"selection_divisor"`
	TechnicalWeight  float64 `yaml:"technical_weight" json:"technical_weight"`
	AIWeight         float64 `yaml:"ai_weight" json:"ai_weight"`
	// 기록용, 필터 아님
	MinFinalScore    float64 `yaml:"min_final_score" json:"min_final_score"`
}

// Pricing phase 5: 가격 산출
type Pricing struct {
	HistoryDays      int     `yaml:"history_days" json:"history_days"`
	MinBars          int     `yaml:"min_bars" json:"min_bars"`
	Lookback         int     `yaml:"lookback" json:"lookback"`
	SwingHalfWidth   int     `yaml:"swing_half_width" json:"swing_half_width"`
	SwingCount       int     `yaml:"swing_count" json:"swing_count"`
	ATRMultiple      float64 `yaml:"atr_multiple" json:"atr_multiple"`
	ATRFallbackPct   float64 `yaml:"atr_fallback_pct" json:"atr_fallback_pct"`
	Premium          Premium `yaml:"entry_premium" json:"entry_premium"`
	// buy clamp: support*(1+x)
	SupportBuffer    float64 `yaml:"support_buffer" json:"support_buffer"`
	StopSupportRatio float64 `yaml:"stop_support_ratio" json:"stop_support_ratio"`
	StopBuyRatio     float64 `yaml:"stop_buy_ratio" json:"stop_buy_ratio"`
	DefaultTargetPct float64 `yaml:"default_target_pct" json:"default_target_pct"`
	MinRiskReward    float64 `yaml:"min_risk_reward" json:"min_risk_reward"`
	WidenMultiple    float64 `yaml:"widen_multiple" json:"widen_multiple"`
	Granularity      float64 `yaml:"granularity" json:"granularity"`
	// technical | none
	Predictor        string  `yaml:"predictor" json:"predictor"`
}

// Premium 진입 프리미엄 (%)
type Premium struct {
	Base          float64 `yaml:"base" json:"base"`
	Min           float64 `yaml:"min" json:"min"`
	Max           float64 `yaml:"max" json:"max"`
	OversoldAdj   float64 `yaml:"oversold_adj" json:"oversold_adj"`
	OverboughtAdj float64 `yaml:"overbought_adj" json:"overbought_adj"`
	MACDAdj       float64 `yaml:"macd_adj" json:"macd_adj"`
}

// DecisionSnapshot ties a run to the exact parameters it used
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// DefaultNameExclusions 비주식 상품 (ETF/ETN/펀드 등) 이름 패턴.
// 대소문자 구분, "^"로 시작하면 브랜드 접두어 ("^ACE "는 "ACE 200"만 제외)
var DefaultNameExclusions = []string{
	"ETF", "ETN", "^KODEX ", "^KOSEF ", "^TIGER ", "^ACE ",
	"인버스", "레버리지", "선물", "펀드", "수익증권", "채권",
}

// Default returns the documented defaults
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "autoquant_daily",
			Version:    "v1",
			Timezone:   "Asia/Seoul",
		},
		Market: Market{
			IndexHistoryBars: 60,
			TrendDays:        7,
			TrendLookback:    10,
			TopSectors:       3,
		},
		AIScreening: AIScreening{
			PromptTopK:          500,
			NameMaxLen:          15,
			TargetMin:           30,
			TargetMax:           50,
			DetailedPromptAbove: 0.7,
			ExcludeNamePatterns: append([]string(nil), DefaultNameExclusions...),
		},
		Technical: Technical{
			MinBars:          50,
			HistoryDays:      400,
			MinSelections:    3,
			MaxSelections:    5,
			SelectionDivisor: 8,
			TechnicalWeight:  0.6,
			AIWeight:         0.4,
			MinFinalScore:    50,
		},
		Pricing: Pricing{
			HistoryDays:    200,
			MinBars:        60,
			Lookback:       60,
			SwingHalfWidth: 5,
			SwingCount:     5,
			ATRMultiple:    2.0,
			ATRFallbackPct: 0.03,
			Premium: Premium{
				Base:          1.0,
				Min:           0.5,
				Max:           1.5,
				OversoldAdj:   -0.3,
				OverboughtAdj: 0.3,
				MACDAdj:       0.2,
			},
			SupportBuffer:    0.005,
			StopSupportRatio: 0.98,
			StopBuyRatio:     0.97,
			DefaultTargetPct: 0.02,
			MinRiskReward:    0.8,
			WidenMultiple:    1.0,
			Granularity:      10,
			Predictor:        "technical",
		},
	}
}
