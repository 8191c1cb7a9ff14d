package api

import "errors"

var (
	// ErrNoObservations is returned when an analysis request carries no observations.
	ErrNoObservations = errors.New("no observations in request")

	// ErrProfileExists is returned when a custom profile id is already registered.
	ErrProfileExists = errors.New("profile already exists")

	// ErrProfileNotFound is returned for an unknown preset type or custom profile id.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidRequest is returned for malformed bodies and query parameters.
	ErrInvalidRequest = errors.New("invalid request")
)
