package contracts

import (
	"context"
	"time"
)

// Bar is one daily OHLCV row
type Bar struct {
	Code   string    `json:"code"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Closes extracts close prices, oldest first
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MarketFlows is the market-wide net buying by investor type (KRW)
type MarketFlows struct {
	Date        time.Time `json:"date"`
	Foreign     float64   `json:"foreign"`
	Institution float64   `json:"institution"`
	Retail      float64   `json:"retail"`
}

// Breadth is the advance/decline count for a session
type Breadth struct {
	Advancing int `json:"advancing"`
	Declining int `json:"declining"`
	Unchanged int `json:"unchanged"`
}

// Ratio returns advancing/(advancing+declining), ok=false when empty
func (b Breadth) Ratio() (float64, bool) {
	total := b.Advancing + b.Declining
	if total == 0 {
		return 0, false
	}
	return float64(b.Advancing) / float64(total), true
}

// Index codes
const (
	IndexKOSPI  = "KOSPI"
	IndexKOSDAQ = "KOSDAQ"
)

// MarketDataSource supplies everything the market analyzer reads
type MarketDataSource interface {
	// GetIndexBars returns up to n bars ending at end, oldest first
	GetIndexBars(ctx context.Context, index string, end time.Time, n int) ([]Bar, error)
	GetMarketFlows(ctx context.Context, date time.Time) (*MarketFlows, error)
	GetSectorPerformance(ctx context.Context, date time.Time) (map[string]float64, error)
	GetBreadth(ctx context.Context, date time.Time) (*Breadth, error)
}

// BarSource supplies per-instrument daily bars
type BarSource interface {
	// GetDailyBars returns bars in [start, end], oldest first
	GetDailyBars(ctx context.Context, code string, start, end time.Time) ([]Bar, error)
}

// UniverseSource supplies the instrument universe for a date
type UniverseSource interface {
	CountInstruments(ctx context.Context, date time.Time) (int, error)
	GetInstrumentUniverse(ctx context.Context, date time.Time) ([]Instrument, error)
}

// CompletionRequest is one call to the completion service
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64
	JSONMode    bool
}

// CompletionResponse is the text plus usage of one completion call
type CompletionResponse struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	FromCache        bool
}

// Completer is the external natural-language completion service
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Provider() string
}

// Prediction is a directional model's target estimate
type Prediction struct {
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
	Bullish    bool    `json:"bullish"`
	Model      string  `json:"model"`
}

// Predictor is the directional-model capability used by pricing.
// ok=false means the predictor has no opinion for this history.
type Predictor interface {
	Predict(code string, current float64, history []Bar) (pred Prediction, ok bool)
	Name() string
}

// AnalysisStore persists the seven analysis entities.
// Each Save* commits its rows and the phase flag in one transaction.
type AnalysisStore interface {
	CreateRun(ctx context.Context, run *AnalysisRun) error
	CompletePhase1(ctx context.Context, run *AnalysisRun, instrumentCount int) error
	SaveMarketSnapshot(ctx context.Context, run *AnalysisRun, snap *MarketSnapshot) error
	SaveAIScreening(ctx context.Context, run *AnalysisRun, result *AIScreeningResult, candidates []AICandidate) error
	SaveTechnicalScreening(ctx context.Context, run *AnalysisRun, result *TechnicalScreeningResult, selections []TechnicalSelection) error
	SaveSignals(ctx context.Context, run *AnalysisRun, signals []TradingSignal) error
	FinishRun(ctx context.Context, run *AnalysisRun) error
	CountRunsForDate(ctx context.Context, date time.Time) (int, error)
	ListStaleRuns(ctx context.Context, startedBefore time.Time) ([]AnalysisRun, error)
}
