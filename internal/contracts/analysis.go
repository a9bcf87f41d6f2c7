package contracts

import "time"

// RunStatus is the AnalysisRun state
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsTerminal reports whether the status can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Phase identifies one of the five pipeline phases
// ⭐ SSOT: error_phase 값은 이 상수만 사용
type Phase string

const (
	PhaseDataCollection     Phase = "phase1_data_collection"
	PhaseMarketAnalysis     Phase = "phase2_market_analysis"
	PhaseAIScreening        Phase = "phase3_ai_screening"
	PhaseTechnicalScreening Phase = "phase4_technical_screening"
	PhasePriceCalculation   Phase = "phase5_price_calculation"
)

// Phases lists the phases in execution order
var Phases = []Phase{
	PhaseDataCollection,
	PhaseMarketAnalysis,
	PhaseAIScreening,
	PhaseTechnicalScreening,
	PhasePriceCalculation,
}

// Index returns the 0-based position of the phase, or -1
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// AnalysisRun is one end-to-end execution of the pipeline for a trading date
type AnalysisRun struct {
	ID              int64     `json:"id"`
	TraceID         string    `json:"trace_id"`
	RunDate         time.Time `json:"run_date"`
	TargetTradeDate time.Time `json:"target_trade_date"`
	Status          RunStatus `json:"status"`

	// Phase flags are only ever set to true
	PhaseCompleted [5]bool `json:"phase_completed"`

	ErrorPhase   string `json:"error_phase,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	TotalStocksAnalyzed      int `json:"total_stocks_analyzed"`
	AICandidatesCount        int `json:"ai_candidates_count"`
	TechnicalSelectionsCount int `json:"technical_selections_count"`
	FinalSignalsCount        int `json:"final_signals_count"`

	ConfigHash      string     `json:"config_hash"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// MarkPhase sets the completion flag for a phase
func (r *AnalysisRun) MarkPhase(p Phase) {
	if i := p.Index(); i >= 0 {
		r.PhaseCompleted[i] = true
	}
}

// AllPhasesCompleted reports whether every phase flag is set
func (r *AnalysisRun) AllPhasesCompleted() bool {
	for _, done := range r.PhaseCompleted {
		if !done {
			return false
		}
	}
	return true
}

// CurrentPhase returns the first phase whose flag is not set.
// A run with every flag set reports the last phase.
func (r *AnalysisRun) CurrentPhase() Phase {
	for i, done := range r.PhaseCompleted {
		if !done {
			return Phases[i]
		}
	}
	return Phases[len(Phases)-1]
}

// Trend is the index trend classification
type Trend string

const (
	TrendUp    Trend = "UPTREND"
	TrendDown  Trend = "DOWNTREND"
	TrendRange Trend = "RANGE"
)

// Sentiment is the market sentiment classification
type Sentiment string

const (
	SentimentBullish Sentiment = "BULLISH"
	SentimentNeutral Sentiment = "NEUTRAL"
	SentimentBearish Sentiment = "BEARISH"
)

// MomentumBreakdown holds the bounded momentum sub-scores
type MomentumBreakdown struct {
	IndexTrend      int `json:"index_trend"`      // ±20
	InvestorFlow    int `json:"investor_flow"`    // ±30
	InvestorBalance int `json:"investor_balance"` // -10..+15
	SectorMomentum  int `json:"sector_momentum"`  // ±20
	MarketBreadth   int `json:"market_breadth"`   // ±15
	Raw             int `json:"raw"`
}

// SentimentSignals are the five 0-100 inputs to the sentiment blend
type SentimentSignals struct {
	Momentum       float64 `json:"momentum"`
	InvestorFlow   float64 `json:"investor_flow"`
	Trend          float64 `json:"trend"`
	IndexTechnical float64 `json:"index_technical"`
	RSIMACD        float64 `json:"rsi_macd"`
}

// Values returns the signals in weight order
func (s SentimentSignals) Values() []float64 {
	return []float64{s.Momentum, s.InvestorFlow, s.Trend, s.IndexTechnical, s.RSIMACD}
}

// TrendDay is one session of the short trend history
type TrendDay struct {
	Date            time.Time `json:"date"`
	KOSPIClose      float64   `json:"kospi_close"`
	KOSPIChangePct  float64   `json:"kospi_change"`
	ForeignFlow     float64   `json:"foreign_flow"`
	InstitutionFlow float64   `json:"institution_flow"`
	RetailFlow      float64   `json:"retail_flow"`
	Trend           Trend     `json:"market_trend"`
}

// TrendAnalysis summarises the short trend history
type TrendAnalysis struct {
	Direction    string `json:"direction"`
	Momentum     string `json:"momentum"`
	ReversalRisk string `json:"reversal_risk"`
	ForeignTrend string `json:"foreign_trend"`
}

// MarketSnapshot is one day's market-condition measurement
type MarketSnapshot struct {
	ID            int64     `json:"id"`
	AnalysisRunID int64     `json:"analysis_run_id"`
	Date          time.Time `json:"date"`

	KOSPIClose      float64 `json:"kospi_close"`
	KOSPIChangePct  float64 `json:"kospi_change_pct"`
	KOSDAQClose     float64 `json:"kosdaq_close"`
	KOSDAQChangePct float64 `json:"kosdaq_change_pct"`
	KOSPITrend      Trend   `json:"kospi_trend"`

	ForeignNet     float64 `json:"foreign_net"`
	InstitutionNet float64 `json:"institution_net"`
	RetailNet      float64 `json:"retail_net"`

	AdvancingCount      int     `json:"advancing_count"`
	DecliningCount      int     `json:"declining_count"`
	AdvanceDeclineRatio float64 `json:"advance_decline_ratio"`

	MomentumScore     int               `json:"momentum_score"`
	MomentumBreakdown MomentumBreakdown `json:"momentum_breakdown"`

	Sentiment             Sentiment        `json:"sentiment"`
	SentimentScore        float64          `json:"sentiment_score"`
	Signals               SentimentSignals `json:"signals"`
	VolumeRatio           float64          `json:"volume_ratio"`
	VolumeAdjustment      float64          `json:"volume_adjustment"`
	SignalConvergence     float64          `json:"signal_convergence"`
	ConvergenceMultiplier float64          `json:"convergence_multiplier"`
	ConfidenceLevel       string           `json:"confidence_level"`
	IndexRSI              float64          `json:"index_rsi"`
	MACDDirection         string           `json:"macd_direction"`

	SectorPerformance map[string]float64 `json:"sector_performance"`
	TopSectors        []string           `json:"top_sectors"`
	Trend7d           []TrendDay         `json:"trend_7d"`
	TrendAnalysis     TrendAnalysis      `json:"trend_analysis"`
}

// Instrument is one row of the candidate universe
type Instrument struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Market    string  `json:"market"`
	Sector    string  `json:"sector"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	MarketCap int64   `json:"market_cap"`
}

// AICandidate is one shortlisted instrument from the completion service
type AICandidate struct {
	ID           int64    `json:"id"`
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Sector       string   `json:"sector"`
	CurrentPrice float64  `json:"current_price"`
	AIScore      float64  `json:"ai_score"` // 0..100
	Rank         int      `json:"rank"`
	Reasoning    string   `json:"reasoning"`
	Signals      []string `json:"signals,omitempty"`
}

// AIScreeningResult is the phase 3 header row
type AIScreeningResult struct {
	ID                  int64         `json:"id"`
	AnalysisRunID       int64         `json:"analysis_run_id"`
	Provider            string        `json:"provider"`
	Model               string        `json:"model"`
	PromptTokens        int           `json:"prompt_tokens"`
	CompletionTokens    int           `json:"completion_tokens"`
	APICost             float64       `json:"api_cost"`
	APICalls            int           `json:"api_calls"`
	InputCount          int           `json:"input_count"`
	CandidateCount      int           `json:"candidate_count"`
	DroppedCount        int           `json:"dropped_count"`
	Duration            time.Duration `json:"duration"`
	Sentiment           Sentiment     `json:"sentiment"`
	SentimentConfidence float64       `json:"sentiment_confidence"`
	FromCache           bool          `json:"from_cache"`
}

// TechnicalIndicators are the indicator values behind a selection
type TechnicalIndicators struct {
	Close      float64  `json:"close"`
	SMA20      float64  `json:"sma20"`
	SMA50      *float64 `json:"sma50,omitempty"`
	SMA200     *float64 `json:"sma200,omitempty"`
	RSI        float64  `json:"rsi"`
	MACD       float64  `json:"macd"`
	MACDSignal float64  `json:"macd_signal"`
	MACDHist   float64  `json:"macd_hist"`
	BBPosition float64  `json:"bb_position"`
	VolRatio   float64  `json:"volume_ratio"`
}

// TechnicalSelection is a scored and selected candidate
type TechnicalSelection struct {
	ID             int64               `json:"id"`
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	Rank           int                 `json:"rank"`
	SMAScore       float64             `json:"sma_score"`    // 0..20
	RSIScore       float64             `json:"rsi_score"`    // 0..15
	MACDScore      float64             `json:"macd_score"`   // 0..15
	BBScore        float64             `json:"bb_score"`     // 0..10
	VolumeScore    float64             `json:"volume_score"` // 0..10
	TechnicalScore float64             `json:"technical_score"`
	AIScore        float64             `json:"ai_score"`
	FinalScore     float64             `json:"final_score"`
	Indicators     TechnicalIndicators `json:"indicators"`
}

// TechnicalScreeningResult is the phase 4 header row
type TechnicalScreeningResult struct {
	ID            int64         `json:"id"`
	AnalysisRunID int64         `json:"analysis_run_id"`
	InputCount    int           `json:"input_count"`
	ValidCount    int           `json:"valid_count"`
	ExcludedCount int           `json:"excluded_count"`
	FinalCount    int           `json:"final_count"`
	ExecTime      time.Duration `json:"exec_time"`
}

// SignalStatus is the lifecycle state of a trading signal
type SignalStatus string

const (
	SignalPending   SignalStatus = "pending"
	SignalExecuted  SignalStatus = "executed"
	SignalCancelled SignalStatus = "cancelled"
	SignalExpired   SignalStatus = "expired"
)

// TradingSignal is the final buy/target/stop recommendation
type TradingSignal struct {
	ID                 int64                  `json:"id"`
	AnalysisRunID      int64                  `json:"analysis_run_id"`
	TechSelectionID    int64                  `json:"tech_selection_id"`
	Code               string                 `json:"code"`
	Name               string                 `json:"name"`
	CurrentPrice       float64                `json:"current_price"`
	BuyPrice           float64                `json:"buy_price"`
	TargetPrice        float64                `json:"target_price"`
	StopLossPrice      float64                `json:"stop_loss_price"`
	PredictedReturn    float64                `json:"predicted_return"` // percent
	RiskRewardRatio    float64                `json:"risk_reward_ratio"`
	AIConfidence       float64                `json:"ai_confidence"`
	Support            float64                `json:"support"`
	Resistance         float64                `json:"resistance"`
	Pivot              float64                `json:"pivot"`
	ATR                float64                `json:"atr"`
	CalculationDetails map[string]interface{} `json:"calculation_details"`
	Status             SignalStatus           `json:"status"`
	TargetTradeDate    time.Time              `json:"target_trade_date"`
	CreatedAt          time.Time              `json:"created_at"`
}

// IsValid checks the price ordering and risk/reward floor
func (s *TradingSignal) IsValid(minRR float64) bool {
	return s.StopLossPrice < s.BuyPrice && s.BuyPrice < s.TargetPrice && s.RiskRewardRatio >= minRR
}
