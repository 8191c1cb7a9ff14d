package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoInput is returned when an analysis has no observation file and
	// synthetic data was not requested.
	ErrNoInput = errors.New("no input specified: provide an observation file or use --synthetic")

	// ErrInvalidTimeWindow is returned when the correlation window is not positive.
	ErrInvalidTimeWindow = errors.New("invalid time window: must be positive")

	// ErrInvalidMinConfidence is returned when the confidence floor is outside 0-100.
	ErrInvalidMinConfidence = errors.New("invalid minimum confidence: must be between 0 and 100")

	// ErrInvalidClusterSize is returned when the minimum cluster size is below 1.
	ErrInvalidClusterSize = errors.New("invalid minimum observations for cluster: must be at least 1")

	// ErrInvalidBoost is returned when a repetition boost parameter is out of range.
	// Boost factor and max boost must be at least 1, min repetitions at least 1.
	ErrInvalidBoost = errors.New("invalid repetition boost parameters")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidRelayLimit is returned when the relay limit is negative.
	// Zero means no limit.
	ErrInvalidRelayLimit = errors.New("invalid relay limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrUnknownProfile is returned when the selected profile is neither a
	// preset nor defined in the configuration file.
	ErrUnknownProfile = errors.New("unknown weight profile")
)
