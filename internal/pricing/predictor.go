package pricing

import (
	"fmt"
	"math"

	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/internal/indicators"
)

// Predictor variant names (strategy config pricing.predictor)
const (
	PredictorTechnical = "technical"
	PredictorNone      = "none"
)

// NewPredictor returns the predictor variant for name, chosen once per run
func NewPredictor(name string) (contracts.Predictor, error) {
	switch name {
	case PredictorTechnical, "":
		return TechnicalProjection{}, nil
	case PredictorNone:
		return NoPrediction{}, nil
	default:
		return nil, fmt.Errorf("unknown predictor %q", name)
	}
}

// TechnicalProjection projects the SMA5/SMA20 spread forward
type TechnicalProjection struct{}

// Name returns the variant name
func (TechnicalProjection) Name() string { return PredictorTechnical }

// Predict is bullish when SMA5 > SMA20, projecting up to +5%.
// Otherwise it projects +1% with low confidence and no directional view.
func (TechnicalProjection) Predict(_ string, current float64, history []contracts.Bar) (contracts.Prediction, bool) {
	closes := contracts.Closes(history)
	sma5, ok5 := indicators.Last(indicators.SMA(closes, 5))
	sma20, ok20 := indicators.Last(indicators.SMA(closes, 20))
	if !ok5 {
		sma5 = current
	}
	if !ok20 {
		sma20 = current
	}

	if sma5 > sma20 && sma20 > 0 {
		strength := math.Min((sma5-sma20)/sma20*100, 5)
		return contracts.Prediction{
			Price:      current * (1 + strength/100),
			Confidence: 60,
			Bullish:    true,
			Model:      PredictorTechnical,
		}, true
	}
	return contracts.Prediction{
		Price:      current * 1.01,
		Confidence: 50,
		Model:      PredictorTechnical,
	}, true
}

// NoPrediction never has an opinion
type NoPrediction struct{}

// Name returns the variant name
func (NoPrediction) Name() string { return PredictorNone }

// Predict always reports ok=false
func (NoPrediction) Predict(string, float64, []contracts.Bar) (contracts.Prediction, bool) {
	return contracts.Prediction{}, false
}
