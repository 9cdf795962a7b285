package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 9 {
		t.Fatalf("unexpected date: %v", d)
	}
	for _, bad := range []string{"", "09/03/2024", "2024-3-9", "2024-02-30", "yesterday"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("%q expected error", bad)
		}
	}
}

func TestDateLabels(t *testing.T) {
	d := NewDate(2024, 1, 17)
	if got := d.MonthLabel(); got != "January 2024" {
		t.Fatalf("MonthLabel = %q", got)
	}
	if got := d.MonthStart().ISO(); got != "2024-01-01" {
		t.Fatalf("MonthStart = %q", got)
	}
	if got := (Date{}).ISO(); got != "" {
		t.Fatalf("empty ISO = %q", got)
	}
}

func TestEntryValidate(t *testing.T) {
	good := Entry{
		Date:        NewDate(2025, 1, 1),
		Description: "wheat - 6pc",
		Amount:      decimal.NewFromInt(300),
		Category:    Income,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	undated := good
	undated.Date = Date{}
	if err := undated.Validate(); err != nil {
		t.Fatalf("undated entry should be valid, got %v", err)
	}

	long := make([]byte, MaxDescriptionLen+1)
	for i := range long {
		long[i] = 'a'
	}

	bads := []Entry{
		{Date: NewDate(2025, 1, 1), Amount: decimal.Zero, Category: Income},
		{Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(-5), Category: Expense},
		{Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(5), Category: "income"},
		{Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(5), Category: ""},
		{Date: NewDate(2025, 1, 1), Amount: decimal.NewFromInt(5), Category: Expense, Description: string(long)},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestEntryRaw(t *testing.T) {
	e := Entry{Amount: decimal.RequireFromString("12.5"), Category: Expense, Description: "Sugar"}
	raw := e.Raw()
	if raw[KeyDate] != "" {
		t.Fatalf("undated entry should store empty date, got %v", raw[KeyDate])
	}
	if raw[KeyAmount] != 12.5 {
		t.Fatalf("amount = %v", raw[KeyAmount])
	}
	if raw[KeyCategory] != "Expense" || raw[KeyDescription] != "Sugar" {
		t.Fatalf("unexpected raw: %v", raw)
	}
}
