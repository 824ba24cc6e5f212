package timer

import "errors"

var ErrInvalidInterval = errors.New("interval must be positive")
