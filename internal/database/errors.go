package database

import "errors"

// ErrNotFound is returned when a requested snapshot or analysis does not exist.
var ErrNotFound = errors.New("record not found")
