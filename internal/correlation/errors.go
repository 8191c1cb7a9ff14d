package correlation

import "errors"

// ErrInvalidSettings is returned by NewEngine when Settings.Validate fails.
var ErrInvalidSettings = errors.New("invalid correlation settings")
