// Package pipeline turns a batch of raw income/expense documents into the
// derived figures shown by the report views: totals, unit counts, expense
// breakdowns, a monthly pivot and a cumulative balance series.
//
// Every function here is a pure transformation of its input. Malformed fields
// degrade to neutral defaults and are reported as warnings; nothing fails.
package pipeline

import (
	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
)

// CategoryPolicy decides how category values other than Income and Expense
// are counted.
type CategoryPolicy int

const (
	// FoldIntoExpense treats anything that is not exactly "Income" as an
	// expense.
	FoldIntoExpense CategoryPolicy = iota
	// StrictCategories keeps unrecognized values out of the income/expense
	// split and sums them under Totals.Unclassified.
	StrictCategories
)

type Options struct {
	Categories CategoryPolicy
	// Rules defaults to DefaultRules when nil.
	Rules *Rules
}

func (o Options) rules() *Rules {
	if o.Rules == nil {
		return defaultRules
	}
	return o.Rules
}

// side maps a category value onto Income, Expense or Unclassified.
func (o Options) side(c core.Category) core.Category {
	switch {
	case c == core.Income:
		return core.Income
	case c == core.Expense, o.Categories == FoldIntoExpense:
		return core.Expense
	default:
		return core.Unclassified
	}
}

var defaultRules = DefaultRules()

// Report bundles every aggregate computed from one batch.
type Report struct {
	Totals        Totals                          `json:"totals"`
	Units         Units                           `json:"units"`
	Segregated    map[ExpenseType]decimal.Decimal `json:"segregated"`
	TopCategories []CategoryAmount                `json:"top_categories"`
	Distribution  []CategoryAmount                `json:"distribution"`
	Monthly       []MonthRow                      `json:"monthly"`
	Cumulative    []BalancePoint                  `json:"cumulative"`
	Warnings      []Warning                       `json:"warnings,omitempty"`
}

// Empty reports whether the batch had no records at all.
func (r Report) Empty() bool {
	return r.Totals.Records == 0
}

// Summarize computes every aggregate over normalized records.
func Summarize(records []core.Record, opts Options) Report {
	segregated := Segregate(records, opts)
	return Report{
		Totals:        ComputeTotals(records, opts),
		Units:         CountUnits(records, opts),
		Segregated:    segregated,
		TopCategories: RankExpenses(segregated, opts),
		Distribution:  Distribute(records),
		Monthly:       MonthlyPivot(records, opts),
		Cumulative:    CumulativeBalance(records, opts),
	}
}

// Run normalizes a raw batch and summarizes it, attaching the normalization
// warnings to the report.
func Run(raw []core.RawRecord, opts Options) Report {
	records, warnings := Normalize(raw)
	report := Summarize(records, opts)
	report.Warnings = warnings
	return report
}
