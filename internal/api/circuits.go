package api

import (
	"fmt"
	"net/http"

	"github.com/nao1215/torcorrelate/internal/topology"
)

// CircuitRequest is the body of POST /circuits/validate.
type CircuitRequest struct {
	Guard  string `json:"guard"`
	Middle string `json:"middle"`
	Exit   string `json:"exit"`

	// SnapshotID selects the snapshot to check against. Empty means latest.
	SnapshotID string `json:"snapshot_id"`
}

// CircuitResponse reports whether a three-hop path could have been built.
type CircuitResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
	SnapshotID string   `json:"snapshot_id"`

	// GuardSelectionProbability is the guard's share of guard bandwidth in percent.
	GuardSelectionProbability float64 `json:"guard_selection_probability"`
}

// ValidateCircuit handles POST /circuits/validate.
func (h *Handler) ValidateCircuit(w http.ResponseWriter, r *http.Request) {
	var req CircuitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Guard == "" || req.Middle == "" || req.Exit == "" {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: guard, middle and exit fingerprints are required", ErrInvalidRequest))
		return
	}

	snapshot, err := h.loadSnapshot(r.Context(), req.SnapshotID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	analyzer := topology.NewAnalyzer(snapshot, topology.WithLogger(h.logger))
	valid, violations := analyzer.IsValidCircuit(req.Guard, req.Middle, req.Exit)
	if violations == nil {
		violations = []string{}
	}

	writeJSON(w, http.StatusOK, CircuitResponse{
		Valid:                     valid,
		Violations:                violations,
		SnapshotID:                analyzer.SnapshotID(),
		GuardSelectionProbability: analyzer.EstimateGuardSelectionProbability(req.Guard),
	})
}
