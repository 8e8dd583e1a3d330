package schema

import "errors"

// Sentinel kinds for registry errors. These allow errors.Is/As from callers.
var (
	ErrSchemaConflict = errors.New("schema conflict")
	ErrUnknownVersion = errors.New("unknown schema version")
)
