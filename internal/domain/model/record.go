// Package model contains domain models passed between pipeline stages.
package model

import "time"

// RawRecord is one loan or telemetry observation at a point in time.
// Fields hold untyped values as received from the ingestion boundary.
// A RawRecord is immutable once ingested.
type RawRecord struct {
	ID        string            // record identifier, e.g. loan number
	Timestamp time.Time         // observation timestamp
	Fields    map[string]string // field name -> raw value
	Source    string            // source tag, e.g. "servicer-feed"
}

// Batch is one orchestrated unit of raw records processed together.
type Batch struct {
	ID            string    // minted per orchestration run, never reused
	ClientRef     string    // caller-supplied reference used for submission idempotency
	SchemaVersion uint64    // declared schema version for every record in the batch
	AsOf          time.Time // as-of timestamp for feature derivation
	Records       []RawRecord
	ReceivedAt    time.Time
}

// Rule identifies a validation rule that a record can violate.
type Rule string

// Validation rule identifiers.
const (
	RuleMissingField          Rule = "missing_field"
	RuleInvalidFormat         Rule = "invalid_format"
	RuleTemporalInconsistency Rule = "temporal_inconsistency"
	RuleDuplicateRecord       Rule = "duplicate_record"
)

// Violation describes one failed validation rule on one record.
type Violation struct {
	Rule   Rule
	Field  string // offending field, empty for record-level rules
	Detail string
}

// Rejection pairs an invalid raw record with everything it violated.
// This is the shape emitted to the rejection sink.
type Rejection struct {
	Record     RawRecord
	Violations []Violation
}

// ValidationReport partitions a batch into valid typed records and rejections.
// len(Valid) + len(Invalid) always equals the number of records validated.
type ValidationReport struct {
	Valid   []TypedRecord
	Invalid []Rejection
}

// Kind enumerates the typed value kinds a schema field can declare.
type Kind string

// Field value kinds.
const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindDateList Kind = "date_list"
)

// Value is one parsed field value of a TypedRecord.
type Value struct {
	Kind  Kind
	Str   string
	Num   float64
	Time  time.Time
	Times []time.Time
}

// TypedRecord is a RawRecord whose fields parsed cleanly against a schema.
type TypedRecord struct {
	ID        string
	Timestamp time.Time
	Source    string
	Values    map[string]Value
}

// Num returns the numeric value of a field, if present and numeric.
func (r TypedRecord) Num(name string) (float64, bool) {
	v, ok := r.Values[name]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// Str returns the string value of a field, if present.
func (r TypedRecord) Str(name string) (string, bool) {
	v, ok := r.Values[name]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Date returns the date value of a field, if present.
func (r TypedRecord) Date(name string) (time.Time, bool) {
	v, ok := r.Values[name]
	if !ok || v.Kind != KindDate {
		return time.Time{}, false
	}
	return v.Time, true
}

// Dates returns the date-list value of a field, if present.
func (r TypedRecord) Dates(name string) ([]time.Time, bool) {
	v, ok := r.Values[name]
	if !ok || v.Kind != KindDateList {
		return nil, false
	}
	return v.Times, true
}
