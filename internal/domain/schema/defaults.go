package schema

import (
	"time"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// DefaultLoanFields returns the field definitions for the baseline loan
// observation schema published at startup.
func DefaultLoanFields() []FieldDef {
	return []FieldDef{
		{Name: "principal_balance", Kind: model.KindNumber, Required: true, NonNegative: true},
		{Name: "property_valuation", Kind: model.KindNumber, NonNegative: true},
		{Name: "ltv", Kind: model.KindNumber, NonNegative: true},
		{Name: "credit_score", Kind: model.KindNumber, NonNegative: true},
		{Name: "annual_income", Kind: model.KindNumber, NonNegative: true},
		{Name: "geography", Kind: model.KindString, Required: true},
		{Name: "effective_date", Kind: model.KindDate, Required: true, MinDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "termination_date", Kind: model.KindDate},
		{Name: "delinquency_dates", Kind: model.KindDateList},
	}
}

// DefaultDateOrders returns the temporal orderings enforced on loan records.
func DefaultDateOrders() []DateOrder {
	return []DateOrder{
		{Start: "effective_date", End: "termination_date"},
	}
}
