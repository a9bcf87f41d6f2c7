package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/wonny/autoquant/backend/internal/analysisdb"
	"github.com/wonny/autoquant/backend/internal/contracts"
	"github.com/wonny/autoquant/backend/pkg/logger"
)

// RunReader is the read side of the analysis store
type RunReader interface {
	GetRun(ctx context.Context, id int64) (*contracts.AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]contracts.AnalysisRun, error)
	LatestCompletedRun(ctx context.Context) (*contracts.AnalysisRun, error)
	GetMarketSnapshot(ctx context.Context, runID int64) (*contracts.MarketSnapshot, error)
	GetAIScreeningResult(ctx context.Context, runID int64) (*contracts.AIScreeningResult, error)
	GetAICandidates(ctx context.Context, runID int64) ([]contracts.AICandidate, error)
	GetTechnicalScreeningResult(ctx context.Context, runID int64) (*contracts.TechnicalScreeningResult, error)
	GetTechnicalSelections(ctx context.Context, runID int64) ([]contracts.TechnicalSelection, error)
	GetSignals(ctx context.Context, runID int64) ([]contracts.TradingSignal, error)
	GetLatestSignals(ctx context.Context, limit int) ([]contracts.TradingSignal, error)
}

var _ RunReader = (*analysisdb.Store)(nil)

const (
	defaultRunHistory = 30
	maxRunHistory     = 200
	defaultSignals    = 20
	maxSignals        = 100
)

// AnalysisHandler serves the read-only dashboard endpoints
// ⭐ SSOT: 분석 결과 조회 API는 여기서만
type AnalysisHandler struct {
	store  RunReader
	logger *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(store RunReader, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		store:  store,
		logger: log,
	}
}

// MarketSummary is the dashboard's market header
type MarketSummary struct {
	Date              string              `json:"date"`
	KOSPIClose        float64             `json:"kospi_close"`
	KOSPIChangePct    float64             `json:"kospi_change_pct"`
	KOSDAQClose       float64             `json:"kosdaq_close"`
	KOSDAQChangePct   float64             `json:"kosdaq_change_pct"`
	KOSPITrend        contracts.Trend     `json:"kospi_trend"`
	Sentiment         contracts.Sentiment `json:"sentiment"`
	MomentumScore     int                 `json:"momentum_score"`
	SignalConvergence float64             `json:"signal_convergence"`
	ConfidenceLevel   string              `json:"confidence_level"`
	TopSectors        []string            `json:"top_sectors"`
}

// DashboardResponse is the latest completed run with its signals
type DashboardResponse struct {
	Run     *contracts.AnalysisRun    `json:"run"`
	Market  *MarketSummary            `json:"market"`
	Signals []contracts.TradingSignal `json:"signals"`
}

// AIScreeningResponse is a run's phase 3 header plus candidates
type AIScreeningResponse struct {
	Result     *contracts.AIScreeningResult `json:"result"`
	Candidates []contracts.AICandidate      `json:"candidates"`
}

// TechnicalResponse is a run's phase 4 header plus selections
type TechnicalResponse struct {
	Result     *contracts.TechnicalScreeningResult `json:"result"`
	Selections []contracts.TechnicalSelection      `json:"selections"`
}

func summarize(s *contracts.MarketSnapshot) *MarketSummary {
	if s == nil {
		return nil
	}
	top := s.TopSectors
	if top == nil {
		top = []string{}
	}
	return &MarketSummary{
		Date:              s.Date.Format("2006-01-02"),
		KOSPIClose:        s.KOSPIClose,
		KOSPIChangePct:    s.KOSPIChangePct,
		KOSDAQClose:       s.KOSDAQClose,
		KOSDAQChangePct:   s.KOSDAQChangePct,
		KOSPITrend:        s.KOSPITrend,
		Sentiment:         s.Sentiment,
		MomentumScore:     s.MomentumScore,
		SignalConvergence: s.SignalConvergence,
		ConfidenceLevel:   s.ConfidenceLevel,
		TopSectors:        top,
	}
}

// GetDashboard returns the latest completed run, its market summary and signals
// GET /api/dashboard
func (h *AnalysisHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := h.store.LatestCompletedRun(ctx)
	if errors.Is(err, analysisdb.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No completed analysis run")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest completed run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve dashboard")
		return
	}

	snap, err := h.store.GetMarketSnapshot(ctx, run.ID)
	if err != nil && !errors.Is(err, analysisdb.ErrNotFound) {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get market snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve dashboard")
		return
	}

	signals, err := h.store.GetSignals(ctx, run.ID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve dashboard")
		return
	}

	respondJSON(w, http.StatusOK, DashboardResponse{
		Run:     run,
		Market:  summarize(snap),
		Signals: nonNil(signals),
	})
}

// GetLatestSignals returns pending signals, newest first
// GET /api/signals?limit=20
func (h *AnalysisHandler) GetLatestSignals(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, defaultSignals, maxSignals)
	signals, err := h.store.GetLatestSignals(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(signals),
		"signals": nonNil(signals),
	})
}

// ListRuns returns the run history, newest first
// GET /api/runs?limit=30
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, defaultRunHistory, maxRunHistory)
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  nonNil(runs),
	})
}

// GetRun returns one run
// GET /api/runs/{id}
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// GetRunMarket returns a run's market snapshot
// GET /api/runs/{id}/market
func (h *AnalysisHandler) GetRunMarket(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	snap, err := h.store.GetMarketSnapshot(r.Context(), run.ID)
	if errors.Is(err, analysisdb.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Market snapshot not recorded for this run")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get market snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve market snapshot")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetRunAICandidates returns a run's AI screening header and candidates
// GET /api/runs/{id}/ai-candidates
func (h *AnalysisHandler) GetRunAICandidates(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	res, err := h.store.GetAIScreeningResult(ctx, run.ID)
	if err != nil && !errors.Is(err, analysisdb.ErrNotFound) {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get AI screening result")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve AI candidates")
		return
	}
	candidates, err := h.store.GetAICandidates(ctx, run.ID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get AI candidates")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve AI candidates")
		return
	}
	respondJSON(w, http.StatusOK, AIScreeningResponse{Result: res, Candidates: nonNil(candidates)})
}

// GetRunTechnical returns a run's technical screening header and selections
// GET /api/runs/{id}/technical
func (h *AnalysisHandler) GetRunTechnical(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	res, err := h.store.GetTechnicalScreeningResult(ctx, run.ID)
	if err != nil && !errors.Is(err, analysisdb.ErrNotFound) {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get technical screening result")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve technical selections")
		return
	}
	selections, err := h.store.GetTechnicalSelections(ctx, run.ID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get technical selections")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve technical selections")
		return
	}
	respondJSON(w, http.StatusOK, TechnicalResponse{Result: res, Selections: nonNil(selections)})
}

// GetRunSignals returns a run's signals by risk/reward
// GET /api/runs/{id}/signals
func (h *AnalysisHandler) GetRunSignals(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	signals, err := h.store.GetSignals(r.Context(), run.ID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to get signals")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"count":   len(signals),
		"signals": nonNil(signals),
	})
}

// loadRun resolves {id} and writes the error response itself
func (h *AnalysisHandler) loadRun(w http.ResponseWriter, r *http.Request) (*contracts.AnalysisRun, bool) {
	id, ok := runIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return nil, false
	}
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, analysisdb.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", id).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		return nil, false
	}
	return run, true
}

// nonNil keeps empty lists as [] in JSON
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
