package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the first row of the records sheet.
var Header = []any{core.KeyDate, core.KeyAmount, core.KeyCategory, core.KeyDescription}

// Ensure interface conformance
var _ store.RecordStore = (*Client)(nil)

// Options locate the records sheet.
type Options struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsFile is a service account key; empty means application
	// default credentials.
	CredentialsFile string
}

// Client stores one record per row in a single sheet, columns A:D.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	mu            sync.Mutex
	headerChecked bool
}

// New creates a Sheets client with a service account or default credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	clientOpts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	if opts.CredentialsFile != "" {
		slog.InfoContext(ctx, "Using service account credentials file", "path", opts.CredentialsFile)
		clientOpts = append(clientOpts, goption.WithCredentialsFile(opts.CredentialsFile))
	} else {
		slog.InfoContext(ctx, "Using application default credentials for Google Sheets")
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, opts.SpreadsheetID, opts.SheetName), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Records"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheet:         sheetName,
	}
}

// Append writes the entry as a new row and returns the updated A1 range.
func (c *Client) Append(ctx context.Context, e core.Entry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := c.ensureHeader(ctx); err != nil {
		return "", err
	}

	raw := e.Raw()
	row := []any{raw[core.KeyDate], raw[core.KeyAmount], raw[core.KeyCategory], raw[core.KeyDescription]}
	vr := &gsheet.ValueRange{Values: [][]any{row}}

	// RAW keeps the ISO date a string instead of a date serial number.
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.a1("A:D"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheet, err)
	}

	ref := c.a1("A:D")
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// ListRecords reads the whole sheet and keeps the rows whose Category cell
// equals category.
func (c *Client) ListRecords(ctx context.Context, category core.Category) ([]core.RawRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := c.a1("A:Z")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return filterCategory(parseRows(resp.Values), category), nil
}

// ensureHeader writes the header row into an empty sheet once per client.
func (c *Client) ensureHeader(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerChecked {
		return nil
	}

	rng := c.a1("A1:D1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		vr := &gsheet.ValueRange{Values: [][]any{Header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		slog.InfoContext(ctx, "Wrote header row to empty sheet", "sheet", c.sheet)
	}
	c.headerChecked = true
	return nil
}

// a1 builds a range on the records sheet, quoting the sheet name.
func (c *Client) a1(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheet, "'", "''"), cells)
}
