package validate_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/cadencefin/riskpipe/internal/domain/model"
	"github.com/cadencefin/riskpipe/internal/domain/schema"
	"github.com/cadencefin/riskpipe/internal/domain/validate"
	. "github.com/smartystreets/goconvey/convey"
)

func loanSchema(t *testing.T) schema.Version {
	t.Helper()
	r := schema.NewRegistry()
	v, err := r.Publish(context.Background(), schema.DefaultLoanFields(), schema.DefaultDateOrders())
	if err != nil {
		t.Fatalf("publish schema: %v", err)
	}
	return v
}

func cleanRecord(id string, ts time.Time) model.RawRecord {
	return model.RawRecord{
		ID:        id,
		Timestamp: ts,
		Source:    "servicer-feed",
		Fields: map[string]string{
			"principal_balance":  "250000",
			"property_valuation": "400000",
			"credit_score":       "720",
			"annual_income":      "95000",
			"geography":          "US-CA",
			"effective_date":     "2019-03-01",
		},
	}
}

func violatedRules(rej model.Rejection) []model.Rule {
	rules := make([]model.Rule, 0, len(rej.Violations))
	for _, v := range rej.Violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	sv := loanSchema(t)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	Convey("Given a validator and the loan schema", t, func() {
		v := validate.New()

		Convey("When validating a clean batch", func() {
			records := []model.RawRecord{
				cleanRecord("L1", ts),
				cleanRecord("L2", ts),
			}
			report, err := v.Validate(ctx, records, sv)

			Convey("Then every record is valid and typed", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldHaveLength, 2)
				So(report.Invalid, ShouldBeEmpty)

				balance, ok := report.Valid[0].Num("principal_balance")
				So(ok, ShouldBeTrue)
				So(balance, ShouldEqual, 250000)

				geo, ok := report.Valid[0].Str("geography")
				So(ok, ShouldBeTrue)
				So(geo, ShouldEqual, "US-CA")
			})
		})

		Convey("When one record is broken the rest still pass", func() {
			bad := cleanRecord("L2", ts)
			delete(bad.Fields, "principal_balance")
			records := []model.RawRecord{cleanRecord("L1", ts), bad, cleanRecord("L3", ts)}

			report, err := v.Validate(ctx, records, sv)

			Convey("Then the batch partitions cleanly", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldHaveLength, 2)
				So(report.Invalid, ShouldHaveLength, 1)
				So(len(report.Valid)+len(report.Invalid), ShouldEqual, len(records))
				So(report.Invalid[0].Record.ID, ShouldEqual, "L2")
			})
		})

		Convey("When a required field is absent or blank", func() {
			missing := cleanRecord("L1", ts)
			delete(missing.Fields, "geography")
			blank := cleanRecord("L2", ts)
			blank.Fields["principal_balance"] = "   "

			report, err := v.Validate(ctx, []model.RawRecord{missing, blank}, sv)

			Convey("Then both are rejected with missing_field", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 2)
				for _, rej := range report.Invalid {
					So(violatedRules(rej), ShouldContain, model.RuleMissingField)
				}
			})
		})

		Convey("When a numeric field does not parse", func() {
			bad := cleanRecord("L1", ts)
			bad.Fields["credit_score"] = "seven-twenty"

			report, err := v.Validate(ctx, []model.RawRecord{bad}, sv)

			Convey("Then it is rejected with invalid_format naming the field", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 1)
				So(report.Invalid[0].Violations, ShouldHaveLength, 1)
				So(report.Invalid[0].Violations[0].Rule, ShouldEqual, model.RuleInvalidFormat)
				So(report.Invalid[0].Violations[0].Field, ShouldEqual, "credit_score")
			})
		})

		Convey("When a non-negative field is negative", func() {
			bad := cleanRecord("L1", ts)
			bad.Fields["principal_balance"] = "-100"

			report, err := v.Validate(ctx, []model.RawRecord{bad}, sv)

			Convey("Then it is rejected with invalid_format", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 1)
				So(violatedRules(report.Invalid[0]), ShouldContain, model.RuleInvalidFormat)
			})
		})

		Convey("When the termination date precedes the effective date", func() {
			bad := cleanRecord("L1", ts)
			bad.Fields["effective_date"] = "2020-05-01"
			bad.Fields["termination_date"] = "2019-01-01"

			report, err := v.Validate(ctx, []model.RawRecord{bad}, sv)

			Convey("Then it is rejected with temporal_inconsistency", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 1)
				So(violatedRules(report.Invalid[0]), ShouldContain, model.RuleTemporalInconsistency)
			})
		})

		Convey("When a date precedes the schema minimum", func() {
			bad := cleanRecord("L1", ts)
			bad.Fields["effective_date"] = "1975-01-01"

			report, err := v.Validate(ctx, []model.RawRecord{bad}, sv)

			Convey("Then it is rejected with temporal_inconsistency", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 1)
				So(violatedRules(report.Invalid[0]), ShouldContain, model.RuleTemporalInconsistency)
			})
		})

		Convey("When the same identifier repeats with an identical timestamp", func() {
			records := []model.RawRecord{
				cleanRecord("L1", ts),
				cleanRecord("L1", ts),
				cleanRecord("L2", ts),
			}
			report, err := v.Validate(ctx, records, sv)

			Convey("Then every copy is flagged, not just the second", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldHaveLength, 1)
				So(report.Valid[0].ID, ShouldEqual, "L2")
				So(report.Invalid, ShouldHaveLength, 2)
				for _, rej := range report.Invalid {
					So(rej.Record.ID, ShouldEqual, "L1")
					So(violatedRules(rej), ShouldContain, model.RuleDuplicateRecord)
				}
			})
		})

		Convey("When the same identifier repeats with different timestamps", func() {
			records := []model.RawRecord{
				cleanRecord("L1", ts),
				cleanRecord("L1", ts.Add(time.Hour)),
			}
			report, err := v.Validate(ctx, records, sv)

			Convey("Then neither is a duplicate", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldHaveLength, 2)
				So(report.Invalid, ShouldBeEmpty)
			})
		})

		Convey("When a record breaks several rules at once", func() {
			bad := cleanRecord("L1", ts)
			delete(bad.Fields, "geography")
			bad.Fields["credit_score"] = "junk"

			report, err := v.Validate(ctx, []model.RawRecord{bad}, sv)

			Convey("Then all violations are reported together", func() {
				So(err, ShouldBeNil)
				So(report.Invalid, ShouldHaveLength, 1)
				rules := violatedRules(report.Invalid[0])
				So(rules, ShouldContain, model.RuleMissingField)
				So(rules, ShouldContain, model.RuleInvalidFormat)
			})
		})

		Convey("When delinquency dates are a comma separated list", func() {
			rec := cleanRecord("L1", ts)
			rec.Fields["delinquency_dates"] = "2023-01-15, 2023-06-20"

			report, err := v.Validate(ctx, []model.RawRecord{rec}, sv)

			Convey("Then the list parses into typed dates", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldHaveLength, 1)
				dates, ok := report.Valid[0].Dates("delinquency_dates")
				So(ok, ShouldBeTrue)
				So(dates, ShouldHaveLength, 2)
			})
		})

		Convey("When an empty batch is validated", func() {
			report, err := v.Validate(ctx, nil, sv)

			Convey("Then both partitions are empty", func() {
				So(err, ShouldBeNil)
				So(report.Valid, ShouldBeEmpty)
				So(report.Invalid, ShouldBeEmpty)
			})
		})

		Convey("When running with bounded concurrency", func() {
			bounded := validate.New(validate.WithConcurrency(2))
			records := make([]model.RawRecord, 0, 50)
			for i := 0; i < 50; i++ {
				records = append(records, cleanRecord("L"+strconv.Itoa(i), ts))
			}
			report, err := bounded.Validate(ctx, records, sv)

			Convey("Then the partition property still holds", func() {
				So(err, ShouldBeNil)
				So(len(report.Valid)+len(report.Invalid), ShouldEqual, len(records))
			})
		})
	})
}
