// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// body decoding for JSON and form-encoded requests, input sanitization, and
// conversion of the record form into a core.Entry.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bitesbytes/internal/core"
)

// maxBodyBytes caps request bodies read by RequestBodyParser.
const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// FieldError reports which form field failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ParseEntry builds an entry from the record form fields. The date is
// optional; the amount must be a positive number and the category exactly
// Income or Expense.
func ParseEntry(get func(string) string) (core.Entry, error) {
	var e core.Entry

	if v := get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Entry{}, &FieldError{Field: "date", Err: err}
		}
		e.Date = d
	}

	amount, err := core.ParseAmount(get("amount"))
	if err != nil {
		return core.Entry{}, &FieldError{Field: "amount", Err: err}
	}
	e.Amount = amount

	e.Category = core.Category(get("category"))
	if !e.Category.IsValid() {
		return core.Entry{}, &FieldError{Field: "category", Err: core.ErrInvalidCategory}
	}

	e.Description = get("description")
	if err := e.Validate(); err != nil {
		return core.Entry{}, &FieldError{Field: fieldFor(err), Err: err}
	}
	return e, nil
}

func fieldFor(err error) string {
	switch {
	case errors.Is(err, core.ErrDescriptionLong):
		return "description"
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, core.ErrInvalidCategory):
		return "category"
	default:
		return "date"
	}
}
