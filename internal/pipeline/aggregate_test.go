package pipeline

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitesbytes/internal/core"
)

// bakeryBatch mixes well-formed and degraded documents the way a real
// collection does.
func bakeryBatch() []core.RawRecord {
	return []core.RawRecord{
		{"Date": "2024-01-05", "Amount": 600, "Category": "Income", "Description": "Wheat - 6pc, Mix - 3pc"},
		{"Date": "2024-01-20", "Amount": "250", "Category": "Income", "Description": "wheat6pc"},
		{"Date": "2024-02-02", "Amount": 150.5, "Category": "Income", "Description": "Mix 2 pc"},
		{"Date": "", "Amount": 100, "Category": "Income", "Description": "cash sale"},
		{"Date": "2024-01-10", "Amount": 80, "Category": "Expense", "Description": "Box and sugar"},
		{"Date": "2024-01-10", "Amount": 120, "Category": "Expense", "Description": "Sugar 5kg"},
		{"Date": "2024-02-15", "Amount": "45.5", "Category": "Expense", "Description": "Banana"},
		{"Category": "Expense", "Description": "Baking paper"},
		{"Date": "not a date", "Amount": 30, "Category": "Expense", "Description": nil},
	}
}

func normalized(t *testing.T, raw []core.RawRecord) []core.Record {
	t.Helper()
	records, _ := Normalize(raw)
	return records
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(normalized(t, bakeryBatch()), Options{})

	assertDecimal(t, "1100.5", totals.Income)
	assertDecimal(t, "275.5", totals.Expense)
	assertDecimal(t, "825", totals.Net)
	assertDecimal(t, "0", totals.Unclassified)
	assert.Equal(t, 9, totals.Records)
	assert.Equal(t, 6, totals.Dated)
}

func TestComputeTotals_OrderIndependent(t *testing.T) {
	raw := bakeryBatch()
	want := ComputeTotals(normalized(t, raw), Options{})

	slices.Reverse(raw)
	got := ComputeTotals(normalized(t, raw), Options{})

	assert.True(t, want.Income.Equal(got.Income))
	assert.True(t, want.Expense.Equal(got.Expense))
	assert.True(t, want.Net.Equal(got.Net))
}

func TestComputeTotals_CategoryPolicy(t *testing.T) {
	raw := []core.RawRecord{
		{"Amount": 100, "Category": "Income"},
		{"Amount": 40, "Category": "Expense"},
		{"Amount": 50, "Category": "income"},
		{"Amount": 5},
	}

	folded := ComputeTotals(normalized(t, raw), Options{})
	assertDecimal(t, "100", folded.Income)
	assertDecimal(t, "95", folded.Expense)
	assertDecimal(t, "0", folded.Unclassified)

	strict := ComputeTotals(normalized(t, raw), Options{Categories: StrictCategories})
	assertDecimal(t, "100", strict.Income)
	assertDecimal(t, "40", strict.Expense)
	assertDecimal(t, "55", strict.Unclassified)
	assertDecimal(t, "60", strict.Net)
}

func TestCountUnits(t *testing.T) {
	tests := []struct {
		name     string
		descs    []string
		wheat    int
		mix      int
		presence int
	}{
		{"both patterns", []string{"Wheat - 6pc, Mix - 3pc"}, 6, 3, 1},
		{"no separators", []string{"wheat6pc"}, 6, 0, 1},
		{"spaces", []string{"Mix 2 pc"}, 0, 2, 1},
		{"first match only", []string{"wheat 2pc wheat 5pc"}, 2, 0, 1},
		{"summed across records", []string{"wheat-1pc", "WHEAT - 4 PC"}, 5, 0, 2},
		{"presence without quantity", []string{"3 pcs of cake"}, 0, 0, 1},
		{"nothing", []string{"cash sale", ""}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]core.Record, len(tt.descs))
			for i, d := range tt.descs {
				records[i] = core.Record{Category: core.Income, Description: d}
			}
			units := CountUnits(records, Options{})
			assert.Equal(t, tt.wheat, units.Wheat())
			assert.Equal(t, tt.mix, units.Mix())
			assert.Equal(t, tt.wheat+tt.mix, units.Total)
			assert.Equal(t, tt.presence, units.PiecesByPresence)
		})
	}
}

func TestCountUnits_IgnoresExpenses(t *testing.T) {
	records := []core.Record{
		{Category: core.Expense, Description: "wheat 10pc"},
		{Category: core.Income, Description: "wheat 1pc"},
	}
	units := CountUnits(records, Options{})
	assert.Equal(t, 1, units.Wheat())
	assert.Equal(t, 1, units.PiecesByPresence)
}

func TestSegregate(t *testing.T) {
	segregated := Segregate(normalized(t, bakeryBatch()), Options{})

	require.Len(t, segregated, 4)
	assertDecimal(t, "80", segregated[Container])
	assertDecimal(t, "120", segregated[Sugar])
	assertDecimal(t, "45.5", segregated[Banana])
	assertDecimal(t, "30", segregated[Material])
	_, ok := segregated[OTG]
	assert.False(t, ok, "types without records are absent")
}

func TestSegregate_SumsToTotalExpense(t *testing.T) {
	for _, opts := range []Options{{}, {Categories: StrictCategories}} {
		raw := append(bakeryBatch(), core.RawRecord{"Amount": 7, "Category": "misc", "Description": "oil"})
		records := normalized(t, raw)

		sum := dec("0")
		for _, amt := range Segregate(records, opts) {
			sum = sum.Add(amt)
		}
		assert.True(t, sum.Equal(ComputeTotals(records, opts).Expense), "policy %d: %s", opts.Categories, sum)
	}
}

func TestRankExpenses(t *testing.T) {
	top := RankExpenses(Segregate(normalized(t, bakeryBatch()), Options{}), Options{})

	require.Len(t, top, 4)
	names := make([]string, len(top))
	for i, c := range top {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Sugar", "Container", "Banana", "Material"}, names)
	assertDecimal(t, "120", top[0].Amount)
	assertDecimal(t, "43.6", top[0].Share)
	assertDecimal(t, "10.9", top[3].Share)
}

func TestRankExpenses_TiesFollowRuleOrder(t *testing.T) {
	segregated := Segregate([]core.Record{
		{Category: core.Expense, Amount: dec("10"), Description: "banana"},
		{Category: core.Expense, Amount: dec("10"), Description: "oil"},
		{Category: core.Expense, Amount: dec("10"), Description: "box"},
	}, Options{})
	top := RankExpenses(segregated, Options{})

	require.Len(t, top, 3)
	assert.Equal(t, "Container", top[0].Name)
	assert.Equal(t, "Oil", top[1].Name)
	assert.Equal(t, "Banana", top[2].Name)
}

func TestRankExpenses_Empty(t *testing.T) {
	top := RankExpenses(map[ExpenseType]decimal.Decimal{}, Options{})
	assert.NotNil(t, top)
	assert.Empty(t, top)
}

func TestBreakdown_RuleOrder(t *testing.T) {
	rows := Breakdown(Segregate(normalized(t, bakeryBatch()), Options{}), Options{})

	names := make([]string, len(rows))
	for i, c := range rows {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Container", "Sugar", "Banana", "Material"}, names)
	assertDecimal(t, "43.6", rows[1].Share)
}

func TestDistribute(t *testing.T) {
	dist := Distribute(normalized(t, bakeryBatch()))

	require.Len(t, dist, 2)
	assert.Equal(t, "Income", dist[0].Name)
	assertDecimal(t, "1100.5", dist[0].Amount)
	assertDecimal(t, "80", dist[0].Share)
	assert.Equal(t, "Expense", dist[1].Name)
	assertDecimal(t, "20", dist[1].Share)
}

func TestMonthlyPivot(t *testing.T) {
	rows := MonthlyPivot(normalized(t, bakeryBatch()), Options{})

	require.Len(t, rows, 2)
	assert.Equal(t, "January 2024", rows[0].Label)
	assert.Equal(t, "2024-01-01", rows[0].Month.ISO())
	assertDecimal(t, "850", rows[0].Income)
	assertDecimal(t, "200", rows[0].Expense)

	assert.Equal(t, "February 2024", rows[1].Label)
	assertDecimal(t, "150.5", rows[1].Income)
	assertDecimal(t, "45.5", rows[1].Expense)
}

func TestMonthlyPivot_Chronological(t *testing.T) {
	records := []core.Record{
		{Date: core.NewDate(2024, 3, 1), Category: core.Income, Amount: dec("1")},
		{Date: core.NewDate(2023, 12, 31), Category: core.Income, Amount: dec("2")},
		{Date: core.NewDate(2024, 1, 15), Category: core.Expense, Amount: dec("3")},
	}
	rows := MonthlyPivot(records, Options{})

	require.Len(t, rows, 3)
	assert.Equal(t, "December 2023", rows[0].Label)
	assert.Equal(t, "January 2024", rows[1].Label)
	assert.Equal(t, "March 2024", rows[2].Label)
	assertDecimal(t, "0", rows[1].Income)
	assertDecimal(t, "3", rows[1].Expense)
}

func TestCumulativeBalance(t *testing.T) {
	points := CumulativeBalance(normalized(t, bakeryBatch()), Options{})

	want := []struct {
		date       string
		net        string
		cumulative string
	}{
		{"2024-01-05", "600", "600"},
		{"2024-01-10", "-80", "520"},
		{"2024-01-10", "-120", "400"},
		{"2024-01-20", "250", "650"},
		{"2024-02-02", "150.5", "800.5"},
		{"2024-02-15", "-45.5", "755"},
	}
	require.Len(t, points, len(want))
	for i, w := range want {
		assert.Equal(t, w.date, points[i].Date.ISO())
		assertDecimal(t, w.net, points[i].Net)
		assertDecimal(t, w.cumulative, points[i].Cumulative)
	}
}

func TestCumulativeBalance_PureIncomeIsMonotonic(t *testing.T) {
	records := []core.Record{
		{Date: core.NewDate(2024, 5, 3), Category: core.Income, Amount: dec("10")},
		{Date: core.NewDate(2024, 5, 1), Category: core.Income, Amount: dec("0")},
		{Date: core.NewDate(2024, 5, 2), Category: core.Income, Amount: dec("25.5")},
	}
	points := CumulativeBalance(records, Options{})

	require.Len(t, points, 3)
	for i := 1; i < len(points); i++ {
		assert.False(t, points[i].Cumulative.LessThan(points[i-1].Cumulative))
		assert.False(t, points[i].Date.Before(points[i-1].Date.Time))
	}
	assertDecimal(t, "35.5", points[2].Cumulative)
}

func TestUndatedRecords(t *testing.T) {
	records := normalized(t, []core.RawRecord{
		{"Date": "", "Amount": 40, "Category": "Income", "Description": "wheat 2pc"},
	})

	totals := ComputeTotals(records, Options{})
	assertDecimal(t, "40", totals.Income)
	assert.Equal(t, 2, CountUnits(records, Options{}).Wheat())
	assert.Empty(t, MonthlyPivot(records, Options{}))
	assert.Empty(t, CumulativeBalance(records, Options{}))
}
