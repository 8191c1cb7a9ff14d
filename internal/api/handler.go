package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/pipeline"
)

// Engine is the part of *correlation.Engine the handlers use.
type Engine interface {
	pipeline.Engine
	SetWeightProfile(p model.WeightProfile) error
	Reset()
}

// Store is the part of *database.CaseDB the handlers use.
type Store interface {
	pipeline.Store
	GetAnalysis(ctx context.Context, runID string) (*model.AnalysisReport, error)
	ListAnalyses(ctx context.Context, caseNumber string) ([]database.AnalysisMetadata, error)
	GetSnapshot(ctx context.Context, id string) (*model.TopologySnapshot, error)
	LatestSnapshot(ctx context.Context) (*model.TopologySnapshot, error)
	ListSnapshots(ctx context.Context) ([]database.SnapshotMetadata, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	engine  Engine
	store   Store
	logger  *slog.Logger
	version string
	now     func() time.Time

	// custom holds custom profiles by id. Seeded from the configuration
	// file and extended through POST /profiles/custom.
	mu     sync.RWMutex
	custom map[string]model.WeightProfile
	order  []string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger used by handlers and middleware.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) {
		h.version = version
	}
}

// WithCustomProfiles registers custom profiles, typically from the
// configuration file. Later profiles with the same id replace earlier ones.
func WithCustomProfiles(profiles ...model.WeightProfile) HandlerOption {
	return func(h *Handler) {
		for _, p := range profiles {
			h.registerProfile(p)
		}
	}
}

// WithClock sets the time source used for observation defaults.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a new API handler.
func NewHandler(engine Engine, store Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		store:  store,
		custom: make(map[string]model.WeightProfile),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// registerProfile stores p, keeping first-registration order. The caller
// must hold mu or be the constructor.
func (h *Handler) registerProfile(p model.WeightProfile) {
	if _, ok := h.custom[p.ID]; !ok {
		h.order = append(h.order, p.ID)
	}
	h.custom[p.ID] = p
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version,omitempty"`
	Time    time.Time `json:"time"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Time:    h.now().UTC(),
	})
}

// RepetitionResponse is the body of GET /repetition-stats.
type RepetitionResponse struct {
	Stats model.RepetitionStats `json:"repetition_weighting"`
}

// GetRepetitionStats handles GET /repetition-stats.
func (h *Handler) GetRepetitionStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RepetitionResponse{Stats: h.engine.RepetitionStats()})
}

// ResetRepetition handles POST /repetition/reset.
func (h *Handler) ResetRepetition(w http.ResponseWriter, r *http.Request) {
	h.engine.Reset()
	h.logger.Info("repetition table reset", "request_id", GetRequestID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ListSnapshots handles GET /topology/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.ListSnapshots(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// errorResponse is the body of every error response.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) //nolint:errcheck // the status line is already sent
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// internalError logs err and answers 500 without leaking its text.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request failed",
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// writeStoreError maps database.ErrNotFound to 404 and everything else to 500.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	h.internalError(w, r, err)
}

// decodeJSON reads a single JSON document into v and rejects unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidRequest)
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
