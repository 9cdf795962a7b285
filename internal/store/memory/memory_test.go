package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref, err := s.Append(ctx, core.Entry{
		Date:        core.NewDate(2024, 1, 5),
		Amount:      decimal.RequireFromString("600"),
		Category:    core.Income,
		Description: "Wheat - 6pc",
	})
	if err != nil || !strings.HasPrefix(ref, "mem:") {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := s.Append(ctx, core.Entry{Amount: decimal.RequireFromString("80"), Category: core.Expense, Description: "box"}); err != nil {
		t.Fatalf("append expense: %v", err)
	}

	income, err := s.ListRecords(ctx, core.Income)
	if err != nil || len(income) != 1 {
		t.Fatalf("unexpected income list: %v err=%v", income, err)
	}
	if income[0][core.KeyDate] != "2024-01-05" || income[0][core.KeyAmount] != 600.0 {
		t.Errorf("unexpected income document: %v", income[0])
	}

	expense, _ := s.ListRecords(ctx, core.Expense)
	if len(expense) != 1 || expense[0][core.KeyDate] != "" {
		t.Errorf("unexpected expense list: %v", expense)
	}
}

func TestMemoryStoreAppendValidates(t *testing.T) {
	s := New()
	_, err := s.Append(context.Background(), core.Entry{Amount: decimal.Zero, Category: core.Income})
	if err != core.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("invalid entry should not be stored")
	}
}

func TestMemoryStoreListIsExactAndCopied(t *testing.T) {
	s := New(
		core.RawRecord{"Category": "Income", "Amount": 1},
		core.RawRecord{"Category": "income", "Amount": 2},
		core.RawRecord{"Amount": 3},
	)
	got, _ := s.ListRecords(context.Background(), core.Income)
	if len(got) != 1 {
		t.Fatalf("expected exact category match, got %v", got)
	}
	got[0]["Amount"] = 99
	again, _ := s.ListRecords(context.Background(), core.Income)
	if again[0]["Amount"] != 1 {
		t.Errorf("ListRecords must return copies, got %v", again[0]["Amount"])
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()

	// No file -> empty store
	s, err := NewFromFiles(dir)
	if err != nil || s.Len() != 0 {
		t.Fatalf("expected empty store, got len=%d err=%v", s.Len(), err)
	}

	seed := `[
		{"Date": "2024-01-05", "Amount": 600, "Category": "Income", "Description": "Wheat - 6pc"},
		{"Date": "", "Amount": "45.5", "Category": "Expense", "Description": "Banana"},
		{"Category": "Expense"}
	]`
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err = NewFromFiles(dir)
	if err != nil {
		t.Fatalf("NewFromFiles: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 seeded documents, got %d", s.Len())
	}
	income, _ := s.ListRecords(context.Background(), core.Income)
	if n, ok := income[0][core.KeyAmount].(json.Number); !ok || n.String() != "600" {
		t.Errorf("expected json.Number amount, got %#v", income[0][core.KeyAmount])
	}
}

func TestNewFromFilesMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(`{"not": "an array"}`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatal("expected decode error")
	}
}
