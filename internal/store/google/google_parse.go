package google

import (
	"fmt"
	"strings"

	"bitesbytes/internal/core"
)

var canonicalKeys = []string{core.KeyDate, core.KeyAmount, core.KeyCategory, core.KeyDescription}

// parseRows converts a values matrix into record documents. When the first
// row names at least one known column it is used as the header; otherwise
// columns are read in Date, Amount, Category, Description order and the first
// row is data. Cells are kept as returned by the API. Empty rows are skipped.
func parseRows(values [][]any) []core.RawRecord {
	if len(values) == 0 {
		return []core.RawRecord{}
	}

	cols, hasHeader := headerColumns(values[0])
	start := 0
	if hasHeader {
		start = 1
	}

	out := make([]core.RawRecord, 0, len(values)-start)
	for _, row := range values[start:] {
		if isBlank(row) {
			continue
		}
		rec := make(core.RawRecord, len(cols))
		for i, cell := range row {
			if i >= len(cols) || cols[i] == "" {
				continue
			}
			rec[cols[i]] = cell
		}
		out = append(out, rec)
	}
	return out
}

// filterCategory keeps documents whose Category cell is exactly category.
func filterCategory(docs []core.RawRecord, category core.Category) []core.RawRecord {
	out := make([]core.RawRecord, 0, len(docs))
	for _, d := range docs {
		if c, ok := d[core.KeyCategory].(string); ok && c == string(category) {
			out = append(out, d)
		}
	}
	return out
}

func headerColumns(first []any) ([]string, bool) {
	headers := toStrings(first)
	cols := make([]string, len(headers))
	found := false
	for i, h := range headers {
		if idx := indexOf(canonicalKeys, h); idx >= 0 {
			cols[i] = canonicalKeys[idx]
			found = true
		}
	}
	if found {
		return cols, true
	}
	return canonicalKeys, false
}

func isBlank(row []any) bool {
	for _, v := range row {
		if strings.TrimSpace(fmt.Sprint(v)) != "" {
			return false
		}
	}
	return true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
