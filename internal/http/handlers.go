package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"bitesbytes/internal/core"
	"bitesbytes/internal/log"
	"bitesbytes/internal/pipeline"
)

// storeTimeout bounds a single store round trip made on behalf of a request.
const storeTimeout = 10 * time.Second

type indexData struct {
	Active     string
	Today      string
	Categories []core.Category
}

type recordRow struct {
	Date        core.Date
	Amount      decimal.Decimal
	Description string
}

type categoryData struct {
	Active   string
	Category core.Category
	Report   pipeline.Report
	Rows     []recordRow
	Wheat    int
	Mix      int
}

type statsData struct {
	Active    string
	Report    pipeline.Report
	Breakdown []pipeline.CategoryAmount
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", indexData{
		Active:     "home",
		Today:      core.Today().ISO(),
		Categories: core.Categories(),
	})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Unreadable record form", log.FieldOperation, log.OpParse, log.FieldError, err)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	entry, err := ParseEntry(parser.Get)
	if err != nil {
		UnprocessableEntityError(validationMessage(err)).Write(w)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	ref, err := s.reports.Add(cctx, entry)
	if err != nil {
		s.structured.LogError(ctx, "Record append failed", err, log.ComponentRecords, log.OpAppend,
			log.NewFields().WithRecord(entry.Date.ISO(), entry.Category.String(), entry.Description, entry.Amount))
		InternalServerError("Could not save the record").Write(w)
		return
	}
	s.structured.LogRecordCreated(ctx, entry.Date.ISO(), entry.Category.String(), entry.Description, entry.Amount, ref)

	body := fmt.Sprintf(`<div class="success">%s recorded: %s %s</div>`,
		template.HTMLEscapeString(entry.Category.String()),
		template.HTMLEscapeString(core.FormatRupees(entry.Amount)),
		template.HTMLEscapeString(entry.Description))
	NewHTMXResponse().
		TriggerRecordCreated(entry.Category.String(), ref).
		TriggerFormReset().
		TriggerReportRefresh().
		TriggerSuccessNotification("Record saved").
		BodyHTML(body).
		Write(w)
}

func validationMessage(err error) string {
	var fe *FieldError
	if !errors.As(err, &fe) {
		return "Invalid record"
	}
	switch fe.Field {
	case "date":
		return "Date must be in YYYY-MM-DD format"
	case "amount":
		return "Amount must be a positive number"
	case "category":
		return "Category must be Income or Expense"
	case "description":
		return fmt.Sprintf("Description must be at most %d characters", core.MaxDescriptionLen)
	default:
		return "Invalid record"
	}
}

// handleCategoryPage lists the records of one category with its totals.
func (s *Server) handleCategoryPage(category core.Category) http.HandlerFunc {
	active := map[core.Category]string{core.Income: "income", core.Expense: "expense"}[category]
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()

		report, records, err := s.reports.BuildCategory(ctx, category)
		if err != nil {
			s.storeUnavailable(w, r, err)
			return
		}

		rows := make([]recordRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, recordRow{Date: rec.Date, Amount: rec.Amount, Description: rec.Description})
		}

		s.render(w, r, "records.html", categoryData{
			Active:   active,
			Category: category,
			Report:   report,
			Rows:     rows,
			Wheat:    report.Units.Wheat(),
			Mix:      report.Units.Mix(),
		})
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	report, err := s.reports.Build(ctx)
	if err != nil {
		s.storeUnavailable(w, r, err)
		return
	}

	s.render(w, r, "stats.html", statsData{
		Active:    "stats",
		Report:    report,
		Breakdown: pipeline.Breakdown(report.Segregated, s.reports.Options()),
	})
}

// handleReportJSON returns the full report, or the report of one category
// when ?category= is set.
func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	var (
		report pipeline.Report
		err    error
	)
	switch c := core.Category(r.URL.Query().Get("category")); {
	case c == "":
		report, err = s.reports.Build(ctx)
	case c.IsValid():
		report, _, err = s.reports.BuildCategory(ctx, c)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": core.ErrInvalidCategory.Error()})
		return
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Report build failed",
			log.FieldOperation, log.OpReport, log.FieldError, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "record store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and reports cache and rate limiter state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	checks := map[string]any{}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.reports == nil {
		checks["reports"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		hits, misses := s.reports.Cache().Stats()
		checks["cache"] = map[string]any{
			"entries": s.reports.Cache().Size(),
			"hits":    hits,
			"misses":  misses,
		}
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.activeClients()}
	checks["security"] = s.metrics.snapshot()

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err)
	}
}

func (s *Server) storeUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	s.structured.LogError(ctx, "Record store read failed", err, log.ComponentRecords, log.OpList,
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")))
	ErrorResponse(http.StatusBadGateway, "The record store is unavailable, try again later").Write(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
