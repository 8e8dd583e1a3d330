package lineage

import "errors"

// Sentinel kinds for lineage store errors. These allow errors.Is/As from callers.
var (
	ErrNotFound       = errors.New("batch not found")
	ErrDuplicateBatch = errors.New("batch already committed")
	ErrStorageWrite   = errors.New("storage write failed")
)
