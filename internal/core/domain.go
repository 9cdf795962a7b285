package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income       Category = "Income"
	Expense      Category = "Expense"
	Unclassified Category = "Unclassified"
)

// Keys of a RawRecord as written by the entry form.
const (
	KeyDate        = "Date"
	KeyAmount      = "Amount"
	KeyCategory    = "Category"
	KeyDescription = "Description"
)

// DateLayout is the ISO-8601 calendar date layout stored in the Date field.
const DateLayout = "2006-01-02"

// MaxDescriptionLen bounds descriptions entered through the forms.
const MaxDescriptionLen = 500

type (
	Category string

	Date struct {
		time.Time
	}

	// RawRecord is a loosely typed document as read from a store. Any key may
	// be missing and values are not guaranteed to have the expected type.
	RawRecord map[string]any

	// Record is the canonical, typed form of a RawRecord.
	Record struct {
		Date        Date // zero when absent or unparseable
		Amount      decimal.Decimal
		Category    Category
		Description string
	}

	// Entry is a record submitted through a form, before it is stored.
	Entry struct {
		Date        Date // optional
		Amount      decimal.Decimal
		Category    Category
		Description string
	}
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrDescriptionLong = errors.New("description too long (max 500 characters)")
	ErrRecordNotFound  = errors.New("record not found")
)

// Categories returns the categories a form may submit.
func Categories() []Category {
	return []Category{Income, Expense}
}

func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c is one of the form categories.
func (c Category) IsValid() bool {
	return c == Income || c == Expense
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar date.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD string. Anything else is rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is absent.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// ISO returns the date as YYYY-MM-DD, or "" when absent.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthStart returns the first day of the date's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// MonthLabel returns the full month name and year, e.g. "January 2024".
func (d Date) MonthLabel() string {
	return d.Format("January 2006")
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when absent.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.ISO() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Dated reports whether the record takes part in date-indexed views.
func (r Record) Dated() bool {
	return !r.Date.IsEmpty()
}

func (e Entry) Validate() error {
	if !e.Date.IsEmpty() {
		if err := e.Date.Validate(); err != nil {
			return err
		}
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Category.IsValid() {
		return ErrInvalidCategory
	}
	if len(e.Description) > MaxDescriptionLen {
		return ErrDescriptionLong
	}
	return nil
}

// Raw converts the entry into the document shape written to stores: the date
// as an ISO string ("" when not set) and the amount as a number.
func (e Entry) Raw() RawRecord {
	amount, _ := e.Amount.Float64()
	return RawRecord{
		KeyDate:        e.Date.ISO(),
		KeyAmount:      amount,
		KeyCategory:    e.Category.String(),
		KeyDescription: e.Description,
	}
}
