package refdata

import (
	"errors"
	"fmt"
)

// ErrLoadSnapshot reports a failure reading a reference data file.
var ErrLoadSnapshot = errors.New("load snapshot")

// WrapLoad annotates a snapshot load failure with the source path.
func WrapLoad(path string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrLoadSnapshot, path, cause)
}
