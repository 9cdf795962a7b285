package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"

	"bitesbytes/internal/core"
	"bitesbytes/internal/store"
)

// AddCmd records one entry. Missing fields are asked for interactively when
// stdin is a terminal.
type AddCmd struct {
	Date        string `help:"Entry date (YYYY-MM-DD). Empty leaves the entry undated." short:"d"`
	Amount      string `help:"Positive amount in rupees, e.g. 450 or 450.50." short:"a"`
	Category    string `help:"Income or Expense." short:"c"`
	Description string `help:"Free text, e.g. 'Wheat - 6pc' or 'sugar 2kg'." short:"m"`
	Today       bool   `help:"Use today's date when --date is not given."`
}

var errMissingFields = errors.New("amount and category are required (pass --amount and --category, or run in a terminal)")

func (cmd *AddCmd) Run(kctx *kong.Context, globals *Globals) error {
	logger := globals.logger(kctx.Stderr)

	if cmd.needsPrompt() {
		if !isTerminal() {
			return errMissingFields
		}
		if err := cmd.prompt(); err != nil {
			return err
		}
	}

	entry, err := cmd.entry()
	if err != nil {
		return err
	}

	cfg, err := globals.config()
	if err != nil {
		return err
	}
	ctx := context.Background()
	result, err := globals.openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	return add(ctx, kctx.Stdout, result.Backend, entry)
}

func (cmd *AddCmd) needsPrompt() bool {
	return strings.TrimSpace(cmd.Amount) == "" || strings.TrimSpace(cmd.Category) == ""
}

// prompt fills the missing fields through an interactive form.
func (cmd *AddCmd) prompt() error {
	if cmd.Date == "" && cmd.Today {
		cmd.Date = core.Today().ISO()
	}
	if cmd.Category == "" {
		cmd.Category = string(core.Income)
	}
	categories := make([]huh.Option[string], 0, 2)
	for _, c := range core.Categories() {
		categories = append(categories, huh.NewOption(c.String(), c.String()))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Date").
				Description("YYYY-MM-DD, leave empty for an undated entry").
				Value(&cmd.Date).
				Validate(validateDate),
			huh.NewInput().
				Title("Amount (₹)").
				Value(&cmd.Amount).
				Validate(func(s string) error {
					_, err := core.ParseAmount(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Category").
				Options(categories...).
				Value(&cmd.Category),
			huh.NewText().
				Title("Description").
				CharLimit(core.MaxDescriptionLen).
				Value(&cmd.Description),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("read entry: %w", err)
	}
	return nil
}

func validateDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := core.ParseDate(s)
	return err
}

// entry validates the collected fields.
func (cmd *AddCmd) entry() (core.Entry, error) {
	var e core.Entry
	date := strings.TrimSpace(cmd.Date)
	if date == "" && cmd.Today {
		e.Date = core.Today()
	} else if date != "" {
		d, err := core.ParseDate(date)
		if err != nil {
			return core.Entry{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", cmd.Date)
		}
		e.Date = d
	}

	amount, err := core.ParseAmount(cmd.Amount)
	if err != nil {
		return core.Entry{}, fmt.Errorf("invalid amount %q: %w", cmd.Amount, err)
	}
	e.Amount = amount
	e.Category = core.Category(strings.TrimSpace(cmd.Category))
	e.Description = strings.TrimSpace(cmd.Description)

	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

func add(ctx context.Context, w io.Writer, st store.RecordWriter, e core.Entry) error {
	ref, err := st.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	date := e.Date.ISO()
	if date == "" {
		date = "undated"
	}
	printSuccess(w, fmt.Sprintf("%s %s (%s) %s", e.Category, core.FormatRupees(e.Amount), date, e.Description))
	printInfof(w, "stored as %s", ref)
	return nil
}
