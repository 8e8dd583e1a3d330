// Package validate applies per-record and per-batch validation rules against
// an active schema version. Records are classified independently; a batch is
// never aborted on the first bad record.
package validate

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cadencefin/riskpipe/internal/domain/model"
	"github.com/cadencefin/riskpipe/internal/domain/schema"
)

// Accepted layouts for raw date values.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithConcurrency bounds the number of records validated in parallel.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// Validator evaluates validation rules for whole batches.
type Validator struct {
	concurrency int
}

// New creates a Validator with default configuration.
func New(opts ...Option) *Validator {
	v := &Validator{
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// outcome is the classification of a single record.
type outcome struct {
	typed      model.TypedRecord
	violations []model.Violation
}

// Validate classifies every record in the batch against the schema version.
// Per-record rules are pure functions of one record plus the shared read-only
// schema, so records are checked in parallel. The only batch-wide rule is
// duplicate detection, which flags every record sharing an (ID, Timestamp)
// pair rather than silently picking a winner.
func (v *Validator) Validate(ctx context.Context, records []model.RawRecord, sv schema.Version) (model.ValidationReport, error) {
	dupes := duplicateKeys(records)

	// Indexed writes into outcomes are disjoint, so no locking is needed.
	outcomes := make([]outcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = v.checkRecord(records[i], sv, dupes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ValidationReport{}, fmt.Errorf("validate batch: %w", err)
	}

	var report model.ValidationReport
	for i, out := range outcomes {
		if len(out.violations) == 0 {
			report.Valid = append(report.Valid, out.typed)
			continue
		}
		report.Invalid = append(report.Invalid, model.Rejection{
			Record:     records[i],
			Violations: out.violations,
		})
	}
	return report, nil
}

// duplicateKeys counts (ID, Timestamp) occurrences across the batch.
func duplicateKeys(records []model.RawRecord) map[string]int {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[dupeKey(r)]++
	}
	return counts
}

func dupeKey(r model.RawRecord) string {
	return r.ID + "|" + r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// checkRecord evaluates every rule for one record and accumulates violations.
// Rules are independent of evaluation order.
func (v *Validator) checkRecord(rec model.RawRecord, sv schema.Version, dupes map[string]int) outcome {
	out := outcome{
		typed: model.TypedRecord{
			ID:        rec.ID,
			Timestamp: rec.Timestamp,
			Source:    rec.Source,
			Values:    make(map[string]model.Value),
		},
	}

	if dupes[dupeKey(rec)] > 1 {
		out.violations = append(out.violations, model.Violation{
			Rule:   model.RuleDuplicateRecord,
			Detail: fmt.Sprintf("identifier %s repeats with identical timestamp", rec.ID),
		})
	}

	for _, def := range sv.Fields {
		raw, present := rec.Fields[def.Name]
		if !present || strings.TrimSpace(raw) == "" {
			if def.Required {
				out.violations = append(out.violations, model.Violation{
					Rule:   model.RuleMissingField,
					Field:  def.Name,
					Detail: "required field absent or empty",
				})
			}
			continue
		}

		val, violation := parseField(def, raw)
		if violation != nil {
			out.violations = append(out.violations, *violation)
			continue
		}
		out.typed.Values[def.Name] = val
	}

	out.violations = append(out.violations, checkDateOrders(out.typed, sv.DateOrders)...)
	return out
}

// parseField parses one raw value against its field definition.
func parseField(def schema.FieldDef, raw string) (model.Value, *model.Violation) {
	switch def.Kind {
	case model.KindString:
		return model.Value{Kind: model.KindString, Str: raw}, nil

	case model.KindNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return model.Value{}, &model.Violation{
				Rule:   model.RuleInvalidFormat,
				Field:  def.Name,
				Detail: fmt.Sprintf("%q is not numeric", raw),
			}
		}
		if def.NonNegative && n < 0 {
			return model.Value{}, &model.Violation{
				Rule:   model.RuleInvalidFormat,
				Field:  def.Name,
				Detail: fmt.Sprintf("negative value %v where only non-negative is allowed", n),
			}
		}
		return model.Value{Kind: model.KindNumber, Num: n}, nil

	case model.KindDate:
		t, err := parseDate(raw)
		if err != nil {
			return model.Value{}, &model.Violation{
				Rule:   model.RuleInvalidFormat,
				Field:  def.Name,
				Detail: fmt.Sprintf("%q is not a date", raw),
			}
		}
		if !def.MinDate.IsZero() && t.Before(def.MinDate) {
			return model.Value{}, &model.Violation{
				Rule:   model.RuleTemporalInconsistency,
				Field:  def.Name,
				Detail: fmt.Sprintf("date %s precedes allowed minimum %s", t.Format("2006-01-02"), def.MinDate.Format("2006-01-02")),
			}
		}
		if !def.MaxDate.IsZero() && t.After(def.MaxDate) {
			return model.Value{}, &model.Violation{
				Rule:   model.RuleTemporalInconsistency,
				Field:  def.Name,
				Detail: fmt.Sprintf("date %s exceeds allowed maximum %s", t.Format("2006-01-02"), def.MaxDate.Format("2006-01-02")),
			}
		}
		return model.Value{Kind: model.KindDate, Time: t}, nil

	case model.KindDateList:
		parts := strings.Split(raw, ",")
		times := make([]time.Time, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			t, err := parseDate(p)
			if err != nil {
				return model.Value{}, &model.Violation{
					Rule:   model.RuleInvalidFormat,
					Field:  def.Name,
					Detail: fmt.Sprintf("%q is not a date list", raw),
				}
			}
			times = append(times, t)
		}
		return model.Value{Kind: model.KindDateList, Times: times}, nil

	default:
		return model.Value{}, &model.Violation{
			Rule:   model.RuleInvalidFormat,
			Field:  def.Name,
			Detail: fmt.Sprintf("unknown field kind %q", def.Kind),
		}
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// checkDateOrders flags records whose end date precedes the paired start date.
// Pairs where either side failed to parse are skipped; the parse violation
// already covers them.
func checkDateOrders(rec model.TypedRecord, orders []schema.DateOrder) []model.Violation {
	var violations []model.Violation
	for _, ord := range orders {
		start, okS := rec.Date(ord.Start)
		end, okE := rec.Date(ord.End)
		if !okS || !okE {
			continue
		}
		if end.Before(start) {
			violations = append(violations, model.Violation{
				Rule:   model.RuleTemporalInconsistency,
				Field:  ord.End,
				Detail: fmt.Sprintf("%s precedes %s", ord.End, ord.Start),
			})
		}
	}
	return violations
}
