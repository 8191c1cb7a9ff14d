package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/torcorrelate/internal/correlation"
)

// Default configuration values.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout bounds one relay directory fetch. The full details
	// document is several megabytes and is slow over Tor.
	DefaultTimeout = 120 * time.Second

	// DefaultBatchSize is the number of cases analyzed concurrently.
	DefaultBatchSize = 4

	// AppName is the application name used for XDG directory paths.
	AppName = "torcorrelate"

	// DefaultOnionooURL is the public relay directory service.
	DefaultOnionooURL = "https://onionoo.torproject.org"

	// DefaultListenAddress binds the HTTP API to loopback only.
	// Analysis results identify cases and must not be exposed by accident.
	DefaultListenAddress = "127.0.0.1:8080"

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap. 3 minutes is typically sufficient for most
	// network conditions, but may need to be increased for slow connections.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for torcorrelate.
// This struct is populated from defaults, the YAML file and CLI flags, and
// is passed through the application rather than kept in global state.
//
// Design decision: We use a single flat struct instead of nested structs.
// Engine settings are assembled on demand by EngineSettings so the
// correlation package never sees CLI or file concerns.
type Config struct {
	// TimeWindow is the largest entry/exit gap that is scored.
	TimeWindow time.Duration

	// MinConfidence drops session pairs below this strength (0-100).
	MinConfidence float64

	// MinObservationsForCluster is the number of pairs sharing a guard
	// required to form a cluster.
	MinObservationsForCluster int

	// RepetitionEnabled turns repetition weighting on or off.
	RepetitionEnabled bool

	// BoostFactor, MinRepetitions and MaxBoost parameterize the repetition weight.
	BoostFactor    float64
	MinRepetitions int
	MaxBoost       float64

	// CountReplays counts a re-submitted observation id again.
	CountReplays bool

	// Profile selects the weight profile: a preset type (standard,
	// time_focused, ...) or the name of a profile in the config file.
	Profile string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .torcorrelate in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// File holds the parsed configuration file, if any.
	// It is kept so that named custom profiles can be resolved later.
	File *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output with tables and a pie chart.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// Inputs lists observation files (JSON arrays of observations).
	Inputs []string

	// Synthetic replaces Inputs with generated observations.
	Synthetic bool

	// CaseNumber labels the analysis run.
	CaseNumber string

	// SnapshotID selects a stored topology snapshot. Empty means latest.
	SnapshotID string

	// BatchSize is the number of cases processed concurrently.
	BatchSize int

	// OnionooURL is the base URL of the relay directory.
	OnionooURL string

	// RelayLimit caps the number of relays fetched. Zero means all.
	RelayLimit int

	// UseTor routes relay directory fetches through Tor.
	UseTor bool

	// UseExternalTor uses the SOCKS proxy at TorProxyAddress instead of
	// starting an embedded Tor daemon. Only meaningful when UseTor is set.
	UseExternalTor bool

	// TorProxyAddress is the address of the external Tor SOCKS5 proxy.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon
	// to start and bootstrap.
	TorStartupTimeout time.Duration

	// Timeout bounds a single relay directory request.
	Timeout time.Duration

	// DBDir is the directory path for the SQLite case store.
	// Defaults to XDG data directory (~/.local/share/torcorrelate on Linux).
	DBDir string

	// SaveToDB indicates whether analysis runs are persisted.
	SaveToDB bool

	// ListenAddress is the bind address of the HTTP API.
	ListenAddress string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (time window, boost factor).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		TimeWindow:                correlation.DefaultTimeWindow,
		MinConfidence:             correlation.DefaultMinConfidence,
		MinObservationsForCluster: correlation.DefaultMinObservationsForCluster,
		RepetitionEnabled:         true,
		BoostFactor:               correlation.DefaultBoostFactor,
		MinRepetitions:            correlation.DefaultMinRepetitions,
		MaxBoost:                  correlation.DefaultMaxBoost,
		Profile:                   "standard",
		BatchSize:                 DefaultBatchSize,
		OnionooURL:                DefaultOnionooURL,
		TorProxyAddress:           DefaultTorProxyAddress,
		TorStartupTimeout:         DefaultTorStartupTimeout,
		Timeout:                   DefaultTimeout,
		DBDir:                     XDGDataDir(),
		SaveToDB:                  true,
		ListenAddress:             DefaultListenAddress,
	}
}

// XDGDataDir returns the XDG data directory for torcorrelate.
// On Linux: ~/.local/share/torcorrelate
// On macOS: ~/Library/Application Support/torcorrelate
// On Windows: %LOCALAPPDATA%\torcorrelate
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for torcorrelate.
// On Linux: ~/.config/torcorrelate
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for torcorrelate.
// On Linux: ~/.cache/torcorrelate
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// EngineSettings converts the configuration into correlation engine settings.
func (c *Config) EngineSettings() correlation.Settings {
	return correlation.Settings{
		TimeWindow:                c.TimeWindow,
		MinConfidence:             c.MinConfidence,
		MinObservationsForCluster: c.MinObservationsForCluster,
		Repetition: correlation.RepetitionSettings{
			Enabled:        c.RepetitionEnabled,
			BoostFactor:    c.BoostFactor,
			MinRepetitions: c.MinRepetitions,
			MaxBoost:       c.MaxBoost,
			CountReplays:   c.CountReplays,
		},
	}
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Input presence is not checked here because most commands take no
// observations; see ValidateInputs.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if c.TimeWindow <= 0 {
		return ErrInvalidTimeWindow
	}

	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return ErrInvalidMinConfidence
	}

	if c.MinObservationsForCluster < 1 {
		return ErrInvalidClusterSize
	}

	if c.BoostFactor < 1 || c.MaxBoost < 1 || c.MinRepetitions < 1 {
		return ErrInvalidBoost
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.RelayLimit < 0 {
		return ErrInvalidRelayLimit
	}

	// JSONReport and MarkdownReport are mutually exclusive
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// ValidateInputs checks that an analysis has something to analyze.
func (c *Config) ValidateInputs() error {
	if len(c.Inputs) == 0 && !c.Synthetic {
		return ErrNoInput
	}
	return nil
}
