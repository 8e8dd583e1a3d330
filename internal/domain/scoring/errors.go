package scoring

import "errors"

// Sentinel kinds for scoring errors. These allow errors.Is/As from callers.
var (
	ErrModelUnavailable = errors.New("model unavailable")
)
