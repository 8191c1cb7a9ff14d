package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// CorrelationConfig is the `correlation` section of the configuration file.
// Pointer fields distinguish "not set" from a zero value.
type CorrelationConfig struct {
	// TimeWindow accepts Go duration strings such as "300s" or "5m".
	TimeWindow                *time.Duration `yaml:"time_window,omitempty"`
	MinConfidence             *float64       `yaml:"min_confidence,omitempty"`
	MinObservationsForCluster *int           `yaml:"min_observations_for_cluster,omitempty"`
}

// RepetitionConfig is the `repetition` section of the configuration file.
type RepetitionConfig struct {
	Enabled        *bool    `yaml:"enabled,omitempty"`
	BoostFactor    *float64 `yaml:"boost_factor,omitempty"`
	MinRepetitions *int     `yaml:"min_repetitions,omitempty"`
	MaxBoost       *float64 `yaml:"max_boost,omitempty"`
	CountReplays   *bool    `yaml:"count_replays,omitempty"`
}

// ProfileConfig defines a named custom weight profile.
type ProfileConfig struct {
	Time        float64 `yaml:"time"`
	Volume      float64 `yaml:"volume"`
	Pattern     float64 `yaml:"pattern"`
	CaseID      string  `yaml:"case_id,omitempty"`
	CreatedBy   string  `yaml:"created_by,omitempty"`
	Description string  `yaml:"description,omitempty"`
}

// OnionooConfig is the `onionoo` section of the configuration file.
type OnionooConfig struct {
	URL   string `yaml:"url,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
}

// TorConfig is the `tor` section of the configuration file.
type TorConfig struct {
	Enabled        *bool          `yaml:"enabled,omitempty"`
	External       *bool          `yaml:"external,omitempty"`
	ProxyAddress   string         `yaml:"proxy_address,omitempty"`
	StartupTimeout *time.Duration `yaml:"startup_timeout,omitempty"`
}

// ServerConfig is the `server` section of the configuration file.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// File represents the structure of the .torcorrelate configuration file.
type File struct {
	Correlation CorrelationConfig `yaml:"correlation,omitempty"`
	Repetition  RepetitionConfig  `yaml:"repetition,omitempty"`

	// Profile selects the active profile: a preset type or a key of Profiles.
	Profile string `yaml:"profile,omitempty"`

	// Profiles maps profile names to custom weights.
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty"`

	Onionoo OnionooConfig `yaml:"onionoo,omitempty"`
	Tor     TorConfig     `yaml:"tor,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`

	// DBDir overrides the case store directory.
	DBDir string `yaml:"db_dir,omitempty"`
}

// Apply copies every value set in the file onto cfg.
// CLI flags are applied afterwards and therefore win.
func (cf *File) Apply(cfg *Config) {
	cfg.File = cf

	c := cf.Correlation
	if c.TimeWindow != nil {
		cfg.TimeWindow = *c.TimeWindow
	}
	if c.MinConfidence != nil {
		cfg.MinConfidence = *c.MinConfidence
	}
	if c.MinObservationsForCluster != nil {
		cfg.MinObservationsForCluster = *c.MinObservationsForCluster
	}

	r := cf.Repetition
	if r.Enabled != nil {
		cfg.RepetitionEnabled = *r.Enabled
	}
	if r.BoostFactor != nil {
		cfg.BoostFactor = *r.BoostFactor
	}
	if r.MinRepetitions != nil {
		cfg.MinRepetitions = *r.MinRepetitions
	}
	if r.MaxBoost != nil {
		cfg.MaxBoost = *r.MaxBoost
	}
	if r.CountReplays != nil {
		cfg.CountReplays = *r.CountReplays
	}

	if cf.Profile != "" {
		cfg.Profile = cf.Profile
	}
	if cf.Onionoo.URL != "" {
		cfg.OnionooURL = cf.Onionoo.URL
	}
	if cf.Onionoo.Limit != 0 {
		cfg.RelayLimit = cf.Onionoo.Limit
	}
	if cf.Tor.Enabled != nil {
		cfg.UseTor = *cf.Tor.Enabled
	}
	if cf.Tor.External != nil {
		cfg.UseExternalTor = *cf.Tor.External
	}
	if cf.Tor.ProxyAddress != "" {
		cfg.TorProxyAddress = cf.Tor.ProxyAddress
	}
	if cf.Tor.StartupTimeout != nil {
		cfg.TorStartupTimeout = *cf.Tor.StartupTimeout
	}
	if cf.Server.Listen != "" {
		cfg.ListenAddress = cf.Server.Listen
	}
	if cf.DBDir != "" {
		cfg.DBDir = cf.DBDir
	}
}

// CustomProfile builds the named custom profile and validates its weights.
func (cf *File) CustomProfile(name string) (model.WeightProfile, error) {
	pc, ok := cf.Profiles[name]
	if !ok {
		return model.WeightProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	p, err := model.NewCustomProfile("custom-"+name, name, pc.Time, pc.Volume, pc.Pattern)
	if err != nil {
		return model.WeightProfile{}, err
	}
	p.CaseID = pc.CaseID
	p.CreatedBy = pc.CreatedBy
	p.Description = pc.Description
	return p, nil
}

// CustomProfiles returns every profile defined in the file, sorted by name.
func (cf *File) CustomProfiles() ([]model.WeightProfile, error) {
	names := make([]string, 0, len(cf.Profiles))
	for name := range cf.Profiles {
		names = append(names, name)
	}
	slices.Sort(names)

	profiles := make([]model.WeightProfile, 0, len(names))
	for _, name := range names {
		p, err := cf.CustomProfile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to build profile %q: %w", name, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// ResolveProfile returns the weight profile selected by c.Profile.
// Names defined in the configuration file take precedence over presets so a
// file can shadow a preset name deliberately.
func (c *Config) ResolveProfile() (model.WeightProfile, error) {
	name := c.Profile
	if name == "" {
		return model.StandardProfile(), nil
	}

	if c.File != nil {
		if _, ok := c.File.Profiles[name]; ok {
			return c.File.CustomProfile(name)
		}
	}

	t, err := model.ParseProfileType(name)
	if err != nil || t == model.ProfileCustom {
		return model.WeightProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return model.PredefinedProfile(t)
}
