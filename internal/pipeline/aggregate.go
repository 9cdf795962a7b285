package pipeline

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Totals holds the income/expense split of a batch.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
	// Unclassified is only non-zero under the strict category policy.
	Unclassified decimal.Decimal `json:"unclassified"`
	Records      int             `json:"records"`
	Dated        int             `json:"dated"`
}

// Units holds quantities read out of income descriptions.
type Units struct {
	PiecesByPresence int            `json:"pieces_by_presence"`
	ByLabel          map[string]int `json:"by_label"`
	Total            int            `json:"total"`
}

// Count returns the summed quantity for an extractor label.
func (u Units) Count(label string) int {
	return u.ByLabel[label]
}

func (u Units) Wheat() int { return u.Count(LabelWheat) }

func (u Units) Mix() int { return u.Count(LabelMix) }

// CategoryAmount is one slice of a breakdown, with its percentage share.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Share  decimal.Decimal `json:"share"`
}

// MonthRow is one row of the monthly income/expense pivot.
type MonthRow struct {
	Month   core.Date       `json:"month"`
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// BalancePoint is one record's step in the cumulative net-balance series.
type BalancePoint struct {
	Date       core.Date       `json:"date"`
	Net        decimal.Decimal `json:"net"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// ComputeTotals sums income and expense amounts.
func ComputeTotals(records []core.Record, opts Options) Totals {
	t := Totals{Records: len(records)}
	for _, r := range records {
		if r.Dated() {
			t.Dated++
		}
		switch opts.side(r.Category) {
		case core.Income:
			t.Income = t.Income.Add(r.Amount)
		case core.Expense:
			t.Expense = t.Expense.Add(r.Amount)
		default:
			t.Unclassified = t.Unclassified.Add(r.Amount)
		}
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

// CountUnits scans income descriptions for the presence token and for the
// quantities captured by each extractor. Only the first match of a pattern
// in a description is counted; different patterns count independently.
func CountUnits(records []core.Record, opts Options) Units {
	rules := opts.rules()
	u := Units{ByLabel: make(map[string]int, len(rules.Extractors))}
	for _, ex := range rules.Extractors {
		u.ByLabel[ex.Label] = 0
	}
	for _, r := range records {
		if opts.side(r.Category) != core.Income {
			continue
		}
		desc := strings.ToLower(r.Description)
		if rules.Presence != "" && strings.Contains(desc, rules.Presence) {
			u.PiecesByPresence++
		}
		for _, ex := range rules.Extractors {
			m := ex.Pattern.FindStringSubmatch(desc)
			if len(m) < 2 {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			u.ByLabel[ex.Label] += n
			u.Total += n
		}
	}
	return u
}

// Segregate classifies every expense record and sums amounts per type. Only
// types with at least one record appear in the result.
func Segregate(records []core.Record, opts Options) map[ExpenseType]decimal.Decimal {
	rules := opts.rules()
	out := make(map[ExpenseType]decimal.Decimal)
	for _, r := range records {
		if opts.side(r.Category) != core.Expense {
			continue
		}
		t := rules.Classify(r.Description)
		out[t] = out[t].Add(r.Amount)
	}
	return out
}

// RankExpenses orders segregated totals by descending amount. Equal amounts
// keep the rule priority order.
func RankExpenses(segregated map[ExpenseType]decimal.Decimal, opts Options) []CategoryAmount {
	order := opts.rules().Order()
	rank := make(map[ExpenseType]int, len(order))
	for i, t := range order {
		rank[t] = i
	}

	types := make([]ExpenseType, 0, len(segregated))
	total := decimal.Zero
	for t, amt := range segregated {
		types = append(types, t)
		total = total.Add(amt)
	}
	slices.SortFunc(types, func(a, b ExpenseType) int {
		if c := segregated[b].Cmp(segregated[a]); c != 0 {
			return c
		}
		ra, oka := rank[a]
		rb, okb := rank[b]
		if oka && okb {
			return cmp.Compare(ra, rb)
		}
		return cmp.Compare(a, b)
	})

	out := make([]CategoryAmount, 0, len(types))
	for _, t := range types {
		out = append(out, CategoryAmount{
			Name:   string(t),
			Amount: segregated[t],
			Share:  share(segregated[t], total),
		})
	}
	return out
}

// Breakdown lists the segregated totals in rule order, for tables that
// should not reshuffle as amounts change.
func Breakdown(segregated map[ExpenseType]decimal.Decimal, opts Options) []CategoryAmount {
	total := decimal.Zero
	for _, amt := range segregated {
		total = total.Add(amt)
	}
	out := make([]CategoryAmount, 0, len(segregated))
	for _, t := range opts.rules().Order() {
		if amt, ok := segregated[t]; ok {
			out = append(out, CategoryAmount{Name: string(t), Amount: amt, Share: share(amt, total)})
		}
	}
	return out
}

// Distribute sums amounts per verbatim category value, largest first.
func Distribute(records []core.Record) []CategoryAmount {
	sums := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, r := range records {
		name := string(r.Category)
		sums[name] = sums[name].Add(r.Amount)
		total = total.Add(r.Amount)
	}
	out := make([]CategoryAmount, 0, len(sums))
	for name, amt := range sums {
		out = append(out, CategoryAmount{Name: name, Amount: amt, Share: share(amt, total)})
	}
	slices.SortFunc(out, func(a, b CategoryAmount) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// MonthlyPivot groups dated records by calendar month with one income and one
// expense column per month. Rows are in chronological order.
func MonthlyPivot(records []core.Record, opts Options) []MonthRow {
	idx := make(map[int]int)
	var rows []MonthRow
	for _, r := range records {
		if !r.Dated() {
			continue
		}
		side := opts.side(r.Category)
		if side == core.Unclassified {
			continue
		}
		key := r.Date.MonthStart()
		k := key.Year()*100 + int(key.Month())
		i, ok := idx[k]
		if !ok {
			i = len(rows)
			idx[k] = i
			rows = append(rows, MonthRow{Month: key, Label: key.MonthLabel()})
		}
		if side == core.Income {
			rows[i].Income = rows[i].Income.Add(r.Amount)
		} else {
			rows[i].Expense = rows[i].Expense.Add(r.Amount)
		}
	}
	slices.SortFunc(rows, func(a, b MonthRow) int {
		return a.Month.Compare(b.Month.Time)
	})
	if rows == nil {
		rows = []MonthRow{}
	}
	return rows
}

// CumulativeBalance returns the running sum of income minus expense over dated
// records in date order. Records sharing a date keep their input order and
// each gets its own point.
func CumulativeBalance(records []core.Record, opts Options) []BalancePoint {
	dated := make([]core.Record, 0, len(records))
	for _, r := range records {
		if r.Dated() && opts.side(r.Category) != core.Unclassified {
			dated = append(dated, r)
		}
	}
	slices.SortStableFunc(dated, func(a, b core.Record) int {
		return a.Date.Compare(b.Date.Time)
	})

	out := make([]BalancePoint, 0, len(dated))
	running := decimal.Zero
	for _, r := range dated {
		net := r.Amount
		if opts.side(r.Category) == core.Expense {
			net = net.Neg()
		}
		running = running.Add(net)
		out = append(out, BalancePoint{Date: r.Date, Net: net, Cumulative: running})
	}
	return out
}

// share returns part as a percentage of total, rounded to one decimal place.
func share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(1)
}
