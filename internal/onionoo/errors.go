package onionoo

import "errors"

var (
	// ErrUnexpectedStatus is returned when the directory answers with a
	// non-200 status code.
	ErrUnexpectedStatus = errors.New("unexpected status from relay directory")

	// ErrMalformedAddress is returned for an OR address that has no port or
	// whose port is not a number.
	ErrMalformedAddress = errors.New("malformed OR address")
)
