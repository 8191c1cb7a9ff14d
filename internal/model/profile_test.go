package model

import (
	"errors"
	"math"
	"testing"
)

func TestPredefinedProfiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		profileType ProfileType
		time        float64
		volume      float64
		pattern     float64
	}{
		{ProfileStandard, 0.40, 0.30, 0.30},
		{ProfileTimeFocused, 0.60, 0.20, 0.20},
		{ProfileVolumeFocused, 0.25, 0.50, 0.25},
		{ProfilePatternFocused, 0.25, 0.25, 0.50},
	}

	for _, tt := range tests {
		t.Run(string(tt.profileType), func(t *testing.T) {
			t.Parallel()

			p, err := PredefinedProfile(tt.profileType)
			if err != nil {
				t.Fatalf("PredefinedProfile(%s) error: %v", tt.profileType, err)
			}
			if p.TimeWeight != tt.time || p.VolumeWeight != tt.volume || p.PatternWeight != tt.pattern {
				t.Errorf("weights = %v/%v/%v, want %v/%v/%v",
					p.TimeWeight, p.VolumeWeight, p.PatternWeight, tt.time, tt.volume, tt.pattern)
			}
			if err := p.Validate(); err != nil {
				t.Errorf("preset failed validation: %v", err)
			}
			if p.CreatedAt.IsZero() {
				t.Error("expected CreatedAt to be defaulted")
			}
		})
	}
}

func TestPredefinedProfile_ReturnsCopy(t *testing.T) {
	t.Parallel()

	p, err := PredefinedProfile(ProfileStandard)
	if err != nil {
		t.Fatal(err)
	}
	p.TimeWeight = 0.9

	again := StandardProfile()
	if again.TimeWeight != 0.40 {
		t.Errorf("preset was mutated through a returned copy: %v", again.TimeWeight)
	}
}

func TestPredefinedProfile_Custom(t *testing.T) {
	t.Parallel()

	_, err := PredefinedProfile(ProfileCustom)
	if !errors.Is(err, ErrUnknownProfileType) {
		t.Errorf("expected ErrUnknownProfileType, got %v", err)
	}
}

func TestWeightProfileValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		weights [3]float64
		wantErr bool
	}{
		{name: "balanced", weights: [3]float64{0.4, 0.3, 0.3}},
		{name: "sum within tolerance", weights: [3]float64{0.33333, 0.33333, 0.33334}},
		{name: "pattern only", weights: [3]float64{0, 0, 1}},
		{name: "sum too low", weights: [3]float64{0.5, 0.3, 0.1}, wantErr: true},
		{name: "sum too high", weights: [3]float64{0.5, 0.3, 0.3}, wantErr: true},
		{name: "negative weight", weights: [3]float64{-0.1, 0.6, 0.5}, wantErr: true},
		{name: "weight above one", weights: [3]float64{1.2, -0.1, -0.1}, wantErr: true},
		{name: "NaN weight", weights: [3]float64{math.NaN(), 0.5, 0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := WeightProfile{
				Type:          ProfileCustom,
				TimeWeight:    tt.weights[0],
				VolumeWeight:  tt.weights[1],
				PatternWeight: tt.weights[2],
			}
			err := p.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProfile) {
					t.Errorf("expected ErrInvalidProfile, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateProfile_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	res := ValidateProfile(WeightProfile{TimeWeight: 1.5, VolumeWeight: -0.2, PatternWeight: 0.2})
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	// two range problems plus the sum problem
	if len(res.Problems) != 3 {
		t.Errorf("expected 3 problems, got %d: %v", len(res.Problems), res.Problems)
	}
}

func TestNewCustomProfile(t *testing.T) {
	t.Parallel()

	p, err := NewCustomProfile("case-1", "Case 1", 0.5, 0.3, 0.2)
	if err != nil {
		t.Fatalf("NewCustomProfile error: %v", err)
	}
	if p.Type != ProfileCustom {
		t.Errorf("Type = %s, want custom", p.Type)
	}

	if _, err := NewCustomProfile("bad", "Bad", 0.5, 0.5, 0.5); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestParseProfileType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    ProfileType
		wantErr bool
	}{
		{"standard", ProfileStandard, false},
		{"time-focused", ProfileTimeFocused, false},
		{"TIME_FOCUSED", ProfileTimeFocused, false},
		{" volume_focused ", ProfileVolumeFocused, false},
		{"pattern-focused", ProfilePatternFocused, false},
		{"custom", ProfileCustom, false},
		{"aggressive", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseProfileType(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProfileType) {
					t.Errorf("expected ErrUnknownProfileType, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseProfileType(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestProfileTypeTitle(t *testing.T) {
	t.Parallel()

	if got := ProfileTimeFocused.Title(); got != "Time Focused" {
		t.Errorf("Title() = %q, want %q", got, "Time Focused")
	}
	if got := (WeightProfile{Type: ProfilePatternFocused}).DisplayName(); got != "Pattern Focused Profile" {
		t.Errorf("DisplayName() = %q", got)
	}
}
