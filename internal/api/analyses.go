package api

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/pipeline"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// LatestSnapshot selects the most recently captured snapshot.
const LatestSnapshot = "latest"

// Default and maximum number of pairs returned by GET /analyses/{id}/pairs.
const (
	DefaultPairLimit = 100
	MaxPairLimit     = 10000
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	CaseNumber string `json:"case_number"`

	// SnapshotID enables the circuit check against a stored snapshot.
	// "latest" picks the newest one. Empty skips the check.
	SnapshotID string `json:"snapshot_id"`

	Observations []model.TrafficObservation `json:"observations"`

	// Persist stores observations and the run. Defaults to true.
	Persist *bool `json:"persist"`
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Observations) == 0 {
		writeError(w, http.StatusBadRequest, ErrNoObservations)
		return
	}
	h.normalizeObservations(req.Observations)

	cfg := pipeline.AnalysisConfig{}
	if req.Persist == nil || *req.Persist {
		cfg.Store = h.store
	}
	if req.SnapshotID != "" {
		snapshot, err := h.loadSnapshot(r.Context(), req.SnapshotID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		cfg.Analyzer = topology.NewAnalyzer(snapshot, topology.WithLogger(h.logger))
	}

	report := model.NewAnalysisReport(req.CaseNumber, req.Observations)
	p := pipeline.NewAnalysisPipeline(h.engine, cfg,
		pipeline.WithLogger(h.logger),
		pipeline.WithClock(h.now),
	)
	if err := p.Execute(r.Context(), report); err != nil {
		if errors.Is(err, model.ErrInvalidObservation) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.logger.Info("analysis completed",
		"run_id", report.RunID,
		"pairs", len(report.Pairs),
		"clusters", len(report.Clusters),
		"request_id", GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusOK, report)
}

// normalizeObservations fills in the source and creation time when absent.
func (h *Handler) normalizeObservations(obs []model.TrafficObservation) {
	now := h.now().UTC()
	for i := range obs {
		if obs[i].Source == "" {
			obs[i].Source = model.DefaultObservationSource
		}
		if obs[i].CreatedAt.IsZero() {
			obs[i].CreatedAt = now
		}
	}
}

// loadSnapshot resolves "latest" or a snapshot id.
func (h *Handler) loadSnapshot(ctx context.Context, id string) (*model.TopologySnapshot, error) {
	if id == "" || id == LatestSnapshot {
		return h.store.LatestSnapshot(ctx)
	}
	return h.store.GetSnapshot(ctx, id)
}

// ListAnalyses handles GET /analyses. The optional case query parameter
// filters by case number.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := h.store.ListAnalyses(r.Context(), r.URL.Query().Get("case"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if analyses == nil {
		analyses = []database.AnalysisMetadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	report, ok := h.analysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// analysis loads the run named in the path and writes the error response
// itself when it cannot.
func (h *Handler) analysis(w http.ResponseWriter, r *http.Request) (*model.AnalysisReport, bool) {
	report, err := h.store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return nil, false
	}
	return report, true
}

// PairsResponse is the body of GET /analyses/{id}/pairs.
type PairsResponse struct {
	RunID string              `json:"run_id"`
	Pairs []model.SessionPair `json:"session_pairs"`
	Count int                 `json:"count"`
	Total int                 `json:"total"`
}

// ListPairs handles GET /analyses/{id}/pairs. Pairs are returned strongest
// first, filtered by min_confidence and capped by limit.
func (h *Handler) ListPairs(w http.ResponseWriter, r *http.Request) {
	minConfidence, err := floatParam(r, "min_confidence", 0, 0, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := intParam(r, "limit", DefaultPairLimit, 1, MaxPairLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, ok := h.analysis(w, r)
	if !ok {
		return
	}

	pairs := make([]model.SessionPair, 0, len(report.Pairs))
	for _, p := range report.Pairs {
		if p.CorrelationStrength >= minConfidence {
			pairs = append(pairs, p)
		}
	}
	slices.SortStableFunc(pairs, func(a, b model.SessionPair) int {
		return cmp.Compare(b.CorrelationStrength, a.CorrelationStrength)
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	writeJSON(w, http.StatusOK, PairsResponse{
		RunID: report.RunID,
		Pairs: pairs,
		Count: len(pairs),
		Total: len(report.Pairs),
	})
}

// ClustersResponse is the body of GET /analyses/{id}/clusters.
type ClustersResponse struct {
	RunID    string                     `json:"run_id"`
	Clusters []model.CorrelationCluster `json:"clusters"`
	Count    int                        `json:"count"`
}

// ListClusters handles GET /analyses/{id}/clusters.
func (h *Handler) ListClusters(w http.ResponseWriter, r *http.Request) {
	minConfidence, err := floatParam(r, "min_confidence", 0, 0, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, ok := h.analysis(w, r)
	if !ok {
		return
	}

	clusters := make([]model.CorrelationCluster, 0, len(report.Clusters))
	for _, c := range report.Clusters {
		if c.Confidence >= minConfidence {
			clusters = append(clusters, c)
		}
	}
	writeJSON(w, http.StatusOK, ClustersResponse{
		RunID:    report.RunID,
		Clusters: clusters,
		Count:    len(clusters),
	})
}

// ReasoningResponse is the body of GET /analyses/{id}/pairs/{pairID}/reasoning.
type ReasoningResponse struct {
	PairID              string                `json:"pair_id"`
	CorrelationStrength float64               `json:"correlation_strength"`
	Confidence          model.ConfidenceLevel `json:"confidence_level"`
	Reasoning           []string              `json:"reasoning"`
	Breakdown           model.ScoreBreakdown  `json:"score_breakdown"`
	Observations        PairObservations      `json:"observations"`
	Hypothesis          GuardHypothesis       `json:"hypothesis"`
	CircuitNote         *model.CircuitNote    `json:"circuit_check,omitempty"`
}

// PairObservations names the two observations behind a pair.
type PairObservations struct {
	Entry            string  `json:"entry"`
	Exit             string  `json:"exit"`
	TimeDeltaSeconds float64 `json:"time_delta_seconds"`
}

// GuardHypothesis is the guard a pair points to.
type GuardHypothesis struct {
	GuardRelay      string  `json:"guard_relay,omitempty"`
	GuardConfidence float64 `json:"guard_confidence"`
}

// GetPairReasoning handles GET /analyses/{id}/pairs/{pairID}/reasoning.
func (h *Handler) GetPairReasoning(w http.ResponseWriter, r *http.Request) {
	report, ok := h.analysis(w, r)
	if !ok {
		return
	}
	pairID := chi.URLParam(r, "pairID")
	pair, found := report.FindPair(pairID)
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("pair %q not found in run %s", pairID, report.RunID))
		return
	}

	resp := ReasoningResponse{
		PairID:              pair.ID,
		CorrelationStrength: pair.CorrelationStrength,
		Confidence:          pair.Confidence,
		Reasoning:           pair.Reasoning,
		Breakdown:           pair.Breakdown,
		Observations: PairObservations{
			Entry:            pair.EntryObservationID,
			Exit:             pair.ExitObservationID,
			TimeDeltaSeconds: pair.TimeDeltaSeconds,
		},
		Hypothesis: GuardHypothesis{
			GuardRelay:      pair.HypothesizedGuard,
			GuardConfidence: pair.GuardConfidence,
		},
	}
	for i := range report.CircuitNotes {
		if report.CircuitNotes[i].PairID == pair.ID {
			resp.CircuitNote = &report.CircuitNotes[i]
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SummaryResponse is the body of GET /analyses/{id}/summary.
type SummaryResponse struct {
	RunID      string                   `json:"run_id"`
	CaseNumber string                   `json:"case_number,omitempty"`
	Profile    string                   `json:"profile"`
	Summary    model.CorrelationSummary `json:"summary"`
	Repetition *model.RepetitionStats   `json:"repetition_stats,omitempty"`
}

// GetSummary handles GET /analyses/{id}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	report, ok := h.analysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		RunID:      report.RunID,
		CaseNumber: report.CaseNumber,
		Profile:    report.Profile.DisplayName(),
		Summary:    report.Summary,
		Repetition: report.Repetition,
	})
}

// floatParam parses an optional float query parameter within [lo, hi].
func floatParam(r *http.Request, name string, def, lo, hi float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be a number between %g and %g", ErrInvalidRequest, name, lo, hi)
	}
	return v, nil
}

// intParam parses an optional integer query parameter within [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", ErrInvalidRequest, name, lo, hi)
	}
	return v, nil
}
