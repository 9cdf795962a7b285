package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"bitesbytes/internal/config"
	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/pipeline"
	"bitesbytes/internal/services"
)

// ReportCmd prints the aggregates of the configured store, or of a JSON file
// holding an array of raw records.
type ReportCmd struct {
	File     string `help:"Read raw records from a JSON array file instead of the store." type:"existingfile" short:"f"`
	Category string `help:"Restrict the report to Income or Expense records." short:"c"`
	JSON     bool   `help:"Print the report as JSON."`
	Strict   bool   `help:"Keep category values other than Income and Expense out of the split."`
	Rules    string `help:"YAML rules file (overrides RULES_FILE)." type:"existingfile"`
}

func (cmd *ReportCmd) Run(kctx *kong.Context, globals *Globals) error {
	logger := globals.logger(kctx.Stderr)
	ctx := context.Background()

	category, err := cmd.category()
	if err != nil {
		return err
	}

	var (
		cfg    *config.Config
		report pipeline.Report
	)
	if cmd.File != "" {
		LoadEnvFile()
		cfg = config.Load()
		opts, err := cmd.options(cfg)
		if err != nil {
			return err
		}
		batch, err := readRecordsFile(cmd.File)
		if err != nil {
			return err
		}
		report = services.NewReportService(nil, opts, 0, logger).Summarize(ctx, filterCategory(batch, category))
		return cmd.print(kctx.Stdout, report, opts)
	}

	cfg, err = globals.config()
	if err != nil {
		return err
	}
	opts, err := cmd.options(cfg)
	if err != nil {
		return err
	}
	result, err := globals.openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	reports := services.NewReportService(result.Backend, opts, 0, logger)
	if category == "" {
		report, err = reports.Build(ctx)
	} else {
		report, _, err = reports.BuildCategory(ctx, category)
	}
	if err != nil {
		return err
	}
	return cmd.print(kctx.Stdout, report, opts)
}

func (cmd *ReportCmd) category() (core.Category, error) {
	c := core.Category(strings.TrimSpace(cmd.Category))
	if c != "" && !c.IsValid() {
		return "", fmt.Errorf("%w %q: want Income or Expense", core.ErrInvalidCategory, cmd.Category)
	}
	return c, nil
}

func (cmd *ReportCmd) options(cfg *config.Config) (pipeline.Options, error) {
	if cmd.Rules != "" {
		cfg.RulesFile = cmd.Rules
	}
	if cmd.Strict {
		cfg.StrictCategories = true
	}
	return PipelineOptions(cfg)
}

func (cmd *ReportCmd) print(w io.Writer, report pipeline.Report, opts pipeline.Options) error {
	if cmd.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := io.WriteString(w, RenderReport(report, opts))
	return err
}

// readRecordsFile decodes a JSON array of record documents. Numbers are kept
// as json.Number so amounts are not rounded through float64.
func readRecordsFile(path string) ([]core.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

func decodeRecords(data []byte) ([]core.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var batch []core.RawRecord
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return batch, nil
}

// filterCategory keeps the documents whose Category equals category, the
// same equality the stores apply. An empty category keeps everything.
func filterCategory(batch []core.RawRecord, category core.Category) []core.RawRecord {
	if category == "" {
		return batch
	}
	out := make([]core.RawRecord, 0, len(batch))
	for _, rec := range batch {
		if c, ok := rec[core.KeyCategory].(string); ok && c == string(category) {
			out = append(out, rec)
		}
	}
	return out
}
