package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"bitesbytes/internal/core"
	"bitesbytes/internal/pipeline"
)

// maxWarningsShown bounds the warning lines printed under a report.
const maxWarningsShown = 10

// RenderReport lays a report out as styled sections for the terminal.
func RenderReport(report pipeline.Report, opts pipeline.Options) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Bites & Bytes") + "\n\n")

	if report.Empty() {
		b.WriteString(mutedStyle.Render("No records.") + "\n")
		return b.String()
	}

	t := report.Totals
	pairs := [][2]string{
		{"Income", core.FormatRupees(t.Income)},
		{"Expense", core.FormatRupees(t.Expense)},
		{"Net", core.FormatRupees(t.Net)},
	}
	if !t.Unclassified.IsZero() {
		pairs = append(pairs, [2]string{"Unclassified", core.FormatRupees(t.Unclassified)})
	}
	pairs = append(pairs,
		[2]string{"Records", fmt.Sprintf("%d (%d dated)", t.Records, t.Dated)},
		[2]string{"Wheat cakes", strconv.Itoa(report.Units.Wheat())},
		[2]string{"Mix cakes", strconv.Itoa(report.Units.Mix())},
	)
	for _, p := range pairs {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-13s", p[0])), p[1])
	}

	section(&b, "Expenses by type", amountTable("Type", pipeline.Breakdown(report.Segregated, opts)))
	section(&b, "Top categories", amountTable("Type", report.TopCategories))
	section(&b, "Category distribution", amountTable("Category", report.Distribution))

	if len(report.Monthly) > 0 {
		rows := make([][]string, 0, len(report.Monthly))
		for _, m := range report.Monthly {
			rows = append(rows, []string{m.Label, core.FormatRupees(m.Income), core.FormatRupees(m.Expense)})
		}
		section(&b, "Monthly", newTable([]string{"Month", "Income", "Expense"}, rows))
	}

	if len(report.Cumulative) > 0 {
		rows := make([][]string, 0, len(report.Cumulative))
		for _, p := range report.Cumulative {
			rows = append(rows, []string{p.Date.ISO(), core.FormatRupees(p.Net), core.FormatRupees(p.Cumulative)})
		}
		section(&b, "Cumulative balance", newTable([]string{"Date", "Net", "Balance"}, rows))
	}

	if n := len(report.Warnings); n > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %d record fields could not be read\n", warnStyle.Render(warnSymbol), n)
		for i, w := range report.Warnings {
			if i == maxWarningsShown {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  ... and %d more", n-maxWarningsShown)) + "\n")
				break
			}
			b.WriteString(mutedStyle.Render("  "+w.String()) + "\n")
		}
	}
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	b.WriteString("\n" + titleStyle.Render(title) + "\n" + body + "\n")
}

func amountTable(first string, rows []pipeline.CategoryAmount) string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.Name, core.FormatRupees(r.Amount), r.Share.StringFixed(1) + "%"})
	}
	return newTable([]string{first, "Amount", "Share"}, out)
}

func newTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(labelStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if col > 0 {
				return s.Align(lipgloss.Right)
			}
			return s
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}
