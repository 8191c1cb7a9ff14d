package model

import "errors"

var (
	// ErrInvalidProfile is returned when a weight profile has a weight outside
	// [0, 1] or its three weights do not sum to 1.0. Profiles are never
	// normalized silently; the caller must fix the numbers.
	ErrInvalidProfile = errors.New("invalid weight profile")

	// ErrUnknownProfileType is returned when a profile type name is not recognized.
	ErrUnknownProfileType = errors.New("unknown profile type")

	// ErrInvalidObservation is returned when an observation lacks required fields.
	ErrInvalidObservation = errors.New("invalid traffic observation")
)
