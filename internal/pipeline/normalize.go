package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
)

// Warning describes a field that was degraded to its neutral default, or a
// value that was kept but looks suspicious. Warnings never abort a batch.
type Warning struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("record %d: %s: %s", w.Index, w.Field, w.Reason)
}

// Normalize converts raw documents into typed records. The output has the same
// length and order as the input.
func Normalize(raw []core.RawRecord) ([]core.Record, []Warning) {
	out := make([]core.Record, len(raw))
	var warnings []Warning
	for i, rec := range raw {
		r, ws := normalizeOne(i, rec)
		out[i] = r
		warnings = append(warnings, ws...)
	}
	return out, warnings
}

func normalizeOne(i int, rec core.RawRecord) (core.Record, []Warning) {
	var ws []Warning
	warn := func(field, format string, args ...any) {
		ws = append(ws, Warning{Index: i, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	var r core.Record

	if v, ok := rec[core.KeyAmount]; ok {
		amount, ok := toDecimal(v)
		if !ok {
			warn(core.KeyAmount, "unparseable amount %v, using 0", v)
		} else if amount.IsNegative() {
			warn(core.KeyAmount, "negative amount %s kept as-is", amount)
		}
		r.Amount = amount
	}

	if v, ok := rec[core.KeyDate]; ok {
		d, ok := toDate(v)
		if !ok {
			warn(core.KeyDate, "unparseable date %v, excluded from date views", v)
		}
		r.Date = d
	}

	cat := toString(rec[core.KeyCategory])
	r.Category = core.Category(cat)
	if !r.Category.IsValid() {
		warn(core.KeyCategory, "unrecognized category %q", cat)
	}

	r.Description = toString(rec[core.KeyDescription])
	return r, ws
}

// toDecimal returns zero and false when v cannot be read as a finite number.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	default:
		return decimal.Zero, false
	}
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func fromString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// toDate accepts YYYY-MM-DD strings and time values. An empty string is a
// valid "no date" and is reported as ok.
func toDate(v any) (core.Date, bool) {
	switch t := v.(type) {
	case nil:
		return core.Date{}, true
	case string:
		if strings.TrimSpace(t) == "" {
			return core.Date{}, true
		}
		d, err := core.ParseDate(t)
		if err != nil {
			return core.Date{}, false
		}
		return d, true
	case time.Time:
		if t.IsZero() {
			return core.Date{}, false
		}
		y, m, d := t.Date()
		return core.NewDate(y, int(m), d), true
	case core.Date:
		return t, true
	default:
		return core.Date{}, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
