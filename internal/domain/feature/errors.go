package feature

import "errors"

// Sentinel kinds for derivation errors. These allow errors.Is/As from callers.
var (
	ErrUnknownFeatureSet    = errors.New("unknown feature set version")
	ErrMissingReferenceData = errors.New("missing reference data")
	ErrUnderivableFeature   = errors.New("feature cannot be derived from record")
)
