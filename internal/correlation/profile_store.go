package correlation

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// ProfileStore holds the weight profile used for new correlations.
// SetWeightProfile validates before storing so an invalid profile never
// becomes active.
type ProfileStore interface {
	WeightProfile() model.WeightProfile
	SetWeightProfile(p model.WeightProfile) error
}

// AtomicProfileStore is a ProfileStore backed by an atomic pointer.
// A swap is visible to calls that start after it; calls already running keep
// the profile they loaded.
type AtomicProfileStore struct {
	current atomic.Pointer[model.WeightProfile]
}

var _ ProfileStore = (*AtomicProfileStore)(nil)

// NewAtomicProfileStore validates and stores the initial profile.
func NewAtomicProfileStore(initial model.WeightProfile) (*AtomicProfileStore, error) {
	s := &AtomicProfileStore{}
	if err := s.SetWeightProfile(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// WeightProfile returns a copy of the active profile.
func (s *AtomicProfileStore) WeightProfile() model.WeightProfile {
	p := s.current.Load()
	if p == nil {
		return model.StandardProfile()
	}
	return *p
}

// SetWeightProfile validates p and makes it the active profile.
func (s *AtomicProfileStore) SetWeightProfile(p model.WeightProfile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("failed to set weight profile %q: %w", p.ID, err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.current.Store(&p)
	return nil
}
