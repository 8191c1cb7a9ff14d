package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nao1215/torcorrelate/internal/model"
)

// ProfilesResponse is the body of GET /profiles.
type ProfilesResponse struct {
	Profiles []model.WeightProfile `json:"profiles"`
	Count    int                   `json:"count"`
	Active   string                `json:"active"`
}

// ListProfiles handles GET /profiles. Presets come first, then custom
// profiles in registration order.
func (h *Handler) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := make([]model.WeightProfile, 0, len(model.PredefinedTypes))
	for _, t := range model.PredefinedTypes {
		p, err := model.PredefinedProfile(t)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}

	h.mu.RLock()
	for _, id := range h.order {
		profiles = append(profiles, h.custom[id])
	}
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, ProfilesResponse{
		Profiles: profiles,
		Count:    len(profiles),
		Active:   h.engine.WeightProfile().ID,
	})
}

// GetProfile handles GET /profiles/{type}. The path value is tried as a
// preset type first and then as a custom profile id.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProfile(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// lookupProfile resolves a preset type name or a custom profile id.
func (h *Handler) lookupProfile(name string) (model.WeightProfile, error) {
	if t, err := model.ParseProfileType(name); err == nil && t != model.ProfileCustom {
		return model.PredefinedProfile(t)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if p, ok := h.custom[name]; ok {
		return p, nil
	}
	return model.WeightProfile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
}

// CustomProfileRequest is the body of POST /profiles/custom.
type CustomProfileRequest struct {
	ID            string  `json:"profile_id"`
	Name          string  `json:"profile_name"`
	TimeWeight    float64 `json:"weight_time_correlation"`
	VolumeWeight  float64 `json:"weight_volume_similarity"`
	PatternWeight float64 `json:"weight_pattern_similarity"`
	CaseID        string  `json:"case_id"`
	CreatedBy     string  `json:"created_by"`
	Description   string  `json:"description"`

	// Activate makes the new profile the engine's active profile.
	Activate bool `json:"activate"`
}

// CustomProfileResponse is the body returned after creating a custom profile.
type CustomProfileResponse struct {
	Profile    model.WeightProfile `json:"profile"`
	WeightsSum float64             `json:"weights_sum"`
	Active     bool                `json:"active"`
}

// CreateCustomProfile handles POST /profiles/custom.
func (h *Handler) CreateCustomProfile(w http.ResponseWriter, r *http.Request) {
	var req CustomProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: profile_name is required", ErrInvalidRequest))
		return
	}
	if req.ID == "" {
		req.ID = "custom-" + uuid.NewString()
	}
	if _, err := model.ParseProfileType(req.ID); err == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("%w: %q is a preset name", ErrProfileExists, req.ID))
		return
	}

	p, err := model.NewCustomProfile(req.ID, req.Name, req.TimeWeight, req.VolumeWeight, req.PatternWeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p.CaseID = req.CaseID
	p.CreatedBy = req.CreatedBy
	p.Description = req.Description

	h.mu.Lock()
	if _, exists := h.custom[p.ID]; exists {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, fmt.Errorf("%w: %q", ErrProfileExists, p.ID))
		return
	}
	h.registerProfile(p)
	h.mu.Unlock()

	if req.Activate {
		if err := h.engine.SetWeightProfile(p); err != nil {
			h.internalError(w, r, err)
			return
		}
	}

	h.logger.Info("custom profile created",
		"profile_id", p.ID,
		"activated", req.Activate,
		"created_by", p.CreatedBy,
		"request_id", GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusCreated, CustomProfileResponse{
		Profile:    p,
		WeightsSum: p.TimeWeight + p.VolumeWeight + p.PatternWeight,
		Active:     req.Activate,
	})
}

// GetWeightProfile handles GET /weight-profile.
func (h *Handler) GetWeightProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.WeightProfile())
}

// SetWeightProfileRequest is the body of PUT /weight-profile. Exactly one
// of the fields must be set.
type SetWeightProfileRequest struct {
	// ProfileType selects a preset, e.g. "time_focused".
	ProfileType string `json:"profile_type,omitempty"`

	// ProfileID selects a registered custom profile.
	ProfileID string `json:"profile_id,omitempty"`

	// Profile is an inline profile. It is validated but not registered.
	Profile *model.WeightProfile `json:"profile,omitempty"`
}

// SetWeightProfile handles PUT /weight-profile.
func (h *Handler) SetWeightProfile(w http.ResponseWriter, r *http.Request) {
	var req SetWeightProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	set := 0
	for _, given := range []bool{req.ProfileType != "", req.ProfileID != "", req.Profile != nil} {
		if given {
			set++
		}
	}
	if set != 1 {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: set exactly one of profile_type, profile_id or profile", ErrInvalidRequest))
		return
	}

	var p model.WeightProfile
	switch {
	case req.Profile != nil:
		p = *req.Profile
		if p.Type == "" {
			p.Type = model.ProfileCustom
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = h.now().UTC()
		}
	case req.ProfileType != "":
		t, err := model.ParseProfileType(req.ProfileType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if p, err = model.PredefinedProfile(t); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	default:
		var err error
		if p, err = h.lookupProfile(req.ProfileID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
	}

	if err := h.engine.SetWeightProfile(p); err != nil {
		if errors.Is(err, model.ErrInvalidProfile) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.logger.Info("weight profile changed",
		"profile_id", p.ID,
		"request_id", GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusOK, h.engine.WeightProfile())
}
