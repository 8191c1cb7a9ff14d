package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ProfileType names a family of weight profiles.
type ProfileType string

const (
	ProfileStandard       ProfileType = "standard"
	ProfileTimeFocused    ProfileType = "time_focused"
	ProfileVolumeFocused  ProfileType = "volume_focused"
	ProfilePatternFocused ProfileType = "pattern_focused"
	ProfileCustom         ProfileType = "custom"
)

// WeightSumTolerance is how far the weight sum may drift from 1.0.
const WeightSumTolerance = 1e-4

// ParseProfileType accepts both snake_case and kebab-case names
// ("time_focused" and "time-focused").
func ParseProfileType(s string) (ProfileType, error) {
	t := ProfileType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch t {
	case ProfileStandard, ProfileTimeFocused, ProfileVolumeFocused, ProfilePatternFocused, ProfileCustom:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProfileType, s)
	}
}

// Title returns a display form such as "Time Focused".
func (t ProfileType) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// WeightProfile decides how much each correlation signal contributes to the
// composite score. The three weights must sum to 1.0.
type WeightProfile struct {
	ID            string      `json:"profile_id"`
	Name          string      `json:"profile_name"`
	Type          ProfileType `json:"profile_type"`
	TimeWeight    float64     `json:"weight_time_correlation"`
	VolumeWeight  float64     `json:"weight_volume_similarity"`
	PatternWeight float64     `json:"weight_pattern_similarity"`
	CaseID        string      `json:"case_id,omitempty"`
	CreatedBy     string      `json:"created_by,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Description   string      `json:"description,omitempty"`
}

// predefinedProfiles holds the built-in presets. Callers only ever receive copies.
var predefinedProfiles = map[ProfileType]WeightProfile{
	ProfileStandard: {
		ID:            "standard",
		Name:          "Standard Balanced Profile",
		Type:          ProfileStandard,
		TimeWeight:    0.40,
		VolumeWeight:  0.30,
		PatternWeight: 0.30,
		Description:   "Balanced weights suitable for most investigations. Equal consideration of all signals.",
	},
	ProfileTimeFocused: {
		ID:            "time-focused",
		Name:          "Time-Focused Profile",
		Type:          ProfileTimeFocused,
		TimeWeight:    0.60,
		VolumeWeight:  0.20,
		PatternWeight: 0.20,
		Description:   "Prioritizes temporal correlation. Use when precise timing is critical.",
	},
	ProfileVolumeFocused: {
		ID:            "volume-focused",
		Name:          "Volume-Focused Profile",
		Type:          ProfileVolumeFocused,
		TimeWeight:    0.25,
		VolumeWeight:  0.50,
		PatternWeight: 0.25,
		Description:   "Prioritizes data volume matching. Use for large transfer cases.",
	},
	ProfilePatternFocused: {
		ID:            "pattern-focused",
		Name:          "Pattern-Focused Profile",
		Type:          ProfilePatternFocused,
		TimeWeight:    0.25,
		VolumeWeight:  0.25,
		PatternWeight: 0.50,
		Description:   "Prioritizes behavioral patterns. Use for long-term observation of habitual activity.",
	},
}

// PredefinedTypes lists the preset profile types in display order.
var PredefinedTypes = []ProfileType{
	ProfileStandard, ProfileTimeFocused, ProfileVolumeFocused, ProfilePatternFocused,
}

// PredefinedProfile returns a copy of a built-in preset with CreatedAt set to now.
func PredefinedProfile(t ProfileType) (WeightProfile, error) {
	p, ok := predefinedProfiles[t]
	if !ok {
		return WeightProfile{}, fmt.Errorf("%w: %q has no preset", ErrUnknownProfileType, t)
	}
	p.CreatedAt = time.Now().UTC()
	return p, nil
}

// StandardProfile returns the default balanced preset.
func StandardProfile() WeightProfile {
	p, _ := PredefinedProfile(ProfileStandard) //nolint:errcheck // the standard preset always exists
	return p
}

// NewCustomProfile builds and validates a custom profile.
func NewCustomProfile(id, name string, timeW, volumeW, patternW float64) (WeightProfile, error) {
	p := WeightProfile{
		ID:            id,
		Name:          name,
		Type:          ProfileCustom,
		TimeWeight:    timeW,
		VolumeWeight:  volumeW,
		PatternWeight: patternW,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return WeightProfile{}, err
	}
	return p, nil
}

// ValidationResult collects every problem found in a profile.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
	Sum      float64  `json:"sum"`
}

// ValidateProfile checks the weight range and the sum and reports all problems.
func ValidateProfile(p WeightProfile) ValidationResult {
	res := ValidationResult{Sum: p.TimeWeight + p.VolumeWeight + p.PatternWeight}

	weights := []struct {
		name  string
		value float64
	}{
		{"time", p.TimeWeight},
		{"volume", p.VolumeWeight},
		{"pattern", p.PatternWeight},
	}
	for _, w := range weights {
		if math.IsNaN(w.value) || w.value < 0 || w.value > 1 {
			res.Problems = append(res.Problems,
				fmt.Sprintf("%s weight must be between 0 and 1, got %g", w.name, w.value))
		}
	}

	if math.IsNaN(res.Sum) || math.Abs(res.Sum-1.0) >= WeightSumTolerance {
		res.Problems = append(res.Problems, fmt.Sprintf(
			"weights must sum to 1.0, got %.4f (time %g, volume %g, pattern %g)",
			res.Sum, p.TimeWeight, p.VolumeWeight, p.PatternWeight))
	}

	res.Valid = len(res.Problems) == 0
	return res
}

// Validate returns an error wrapping ErrInvalidProfile when the profile is unusable.
func (p WeightProfile) Validate() error {
	res := ValidateProfile(p)
	if res.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(res.Problems, "; "))
}

// DisplayName returns Name when set, otherwise a title derived from the type.
func (p WeightProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type.Title() + " Profile"
}
