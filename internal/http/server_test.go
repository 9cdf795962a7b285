package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitesbytes/internal/core"
	"bitesbytes/internal/pipeline"
	"bitesbytes/internal/services"
	"bitesbytes/internal/store"
	"bitesbytes/internal/store/memory"
)

func seedRecords() []core.RawRecord {
	return []core.RawRecord{
		{"Date": "2024-01-05", "Amount": 600.0, "Category": "Income", "Description": "Wheat - 6pc"},
		{"Date": "2024-01-20", "Amount": 250.0, "Category": "Income", "Description": "mix 5pc"},
		{"Date": "2024-01-07", "Amount": 80.0, "Category": "Expense", "Description": "Box for cakes"},
		{"Date": "2024-02-02", "Amount": 120.0, "Category": "Expense", "Description": "sugar 2kg"},
	}
}

func newTestServer(t *testing.T, st store.RecordStore, opts ...ServerOption) *Server {
	t.Helper()
	reports := services.NewReportService(st, pipeline.Options{}, time.Minute, nil)
	s := NewServer(":0", reports, nil, opts...)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	require.NotNil(t, s.templates, "templates must parse")
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, req)
	return w
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type unavailableStore struct{}

var errUnavailable = errors.New("store unavailable")

func (unavailableStore) Append(context.Context, core.Entry) (string, error) { return "", errUnavailable }

func (unavailableStore) ListRecords(context.Context, core.Category) ([]core.RawRecord, error) {
	return nil, errUnavailable
}

func TestIndex_RendersForm(t *testing.T) {
	s := newTestServer(t, memory.New())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="amount"`)
	assert.Contains(t, body, `value="Income"`)
	assert.Contains(t, body, `value="Expense"`)
	assert.Contains(t, body, time.Now().Format(core.DateLayout))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIndex_EchoesRequestID(t *testing.T) {
	s := newTestServer(t, memory.New())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")

	w := serve(s, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestUnknownPath_NotFound(t *testing.T) {
	s := newTestServer(t, memory.New())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRecord_Form(t *testing.T) {
	st := memory.New()
	s := newTestServer(t, st)

	w := serve(s, postForm(url.Values{
		"date":        {"2024-03-01"},
		"amount":      {"450,50"},
		"category":    {"Income"},
		"description": {"Wheat 3pc"},
	}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "₹450.50")
	trigger := w.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, `"record:created"`)
	assert.Contains(t, trigger, `"category":"Income"`)
	assert.Equal(t, 1, st.Len())

	recs, err := st.ListRecords(context.Background(), core.Income)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2024-03-01", recs[0][core.KeyDate])
	assert.Equal(t, 450.5, recs[0][core.KeyAmount])
}

func TestCreateRecord_JSONWithoutDate(t *testing.T) {
	st := memory.New()
	s := newTestServer(t, st)
	req := httptest.NewRequest(http.MethodPost, "/records",
		strings.NewReader(`{"amount": 99.5, "category": "Expense", "description": "oil"}`))
	req.Header.Set("Content-Type", "application/json")

	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	recs, err := st.ListRecords(context.Background(), core.Expense)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0][core.KeyDate])
}

func TestCreateRecord_Validation(t *testing.T) {
	tests := []struct {
		name     string
		values   url.Values
		wantBody string
	}{
		{
			name:     "amount not a number",
			values:   url.Values{"amount": {"abc"}, "category": {"Income"}},
			wantBody: "Amount must be a positive number",
		},
		{
			name:     "zero amount",
			values:   url.Values{"amount": {"0"}, "category": {"Income"}},
			wantBody: "Amount must be a positive number",
		},
		{
			name:     "unknown category",
			values:   url.Values{"amount": {"10"}, "category": {"Gift"}},
			wantBody: "Category must be Income or Expense",
		},
		{
			name:     "bad date",
			values:   url.Values{"date": {"01/02/2024"}, "amount": {"10"}, "category": {"Income"}},
			wantBody: "Date must be in YYYY-MM-DD format",
		},
		{
			name:     "description too long",
			values:   url.Values{"amount": {"10"}, "category": {"Income"}, "description": {strings.Repeat("x", 501)}},
			wantBody: "Description must be at most 500 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			s := newTestServer(t, st)

			w := serve(s, postForm(tt.values))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Contains(t, w.Header().Get("HX-Trigger"), `"type":"error"`)
			assert.Zero(t, st.Len())
		})
	}
}

func TestCreateRecord_StoreFailure(t *testing.T) {
	s := newTestServer(t, unavailableStore{})

	w := serve(s, postForm(url.Values{"amount": {"10"}, "category": {"Income"}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Could not save the record")
}

func TestCreateRecord_RateLimited(t *testing.T) {
	s := newTestServer(t, memory.New(), WithRateLimit(2))
	values := url.Values{"amount": {"10"}, "category": {"Income"}}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(s, postForm(values)).Code)
	}
	w := serve(s, postForm(values))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestCategoryPages(t *testing.T) {
	s := newTestServer(t, memory.New(seedRecords()...))

	income := serve(s, httptest.NewRequest(http.MethodGet, "/income", nil))
	require.Equal(t, http.StatusOK, income.Code)
	body := income.Body.String()
	assert.Contains(t, body, "₹850.00")
	assert.Contains(t, body, "Wheat - 6pc")
	assert.Contains(t, body, "2024-01-20")
	assert.NotContains(t, body, "sugar 2kg")

	expense := serve(s, httptest.NewRequest(http.MethodGet, "/expense", nil))
	require.Equal(t, http.StatusOK, expense.Code)
	body = expense.Body.String()
	assert.Contains(t, body, "₹200.00")
	assert.Contains(t, body, "Box for cakes")
	assert.NotContains(t, body, "Wheat - 6pc")
}

func TestCategoryPage_CreatedRecordIsListed(t *testing.T) {
	s := newTestServer(t, memory.New(seedRecords()...))

	before := serve(s, httptest.NewRequest(http.MethodGet, "/expense", nil))
	require.Equal(t, http.StatusOK, before.Code)

	created := serve(s, postForm(url.Values{"amount": {"35"}, "category": {"Expense"}, "description": {"walnuts"}}))
	require.Equal(t, http.StatusOK, created.Code)

	after := serve(s, httptest.NewRequest(http.MethodGet, "/expense", nil))
	assert.Contains(t, after.Body.String(), "walnuts")
	assert.Contains(t, after.Body.String(), "₹235.00")
}

func TestStats(t *testing.T) {
	s := newTestServer(t, memory.New(seedRecords()...))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "₹650.00")
	assert.Contains(t, body, "Sugar")
	assert.Contains(t, body, "Container")
	assert.Contains(t, body, "January 2024")
	assert.Contains(t, body, "February 2024")
	assert.NotContains(t, body, "No records yet")
}

func TestViews_EmptyState(t *testing.T) {
	s := newTestServer(t, memory.New())

	for _, path := range []string{"/income", "/expense", "/stats"} {
		t.Run(path, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "No records yet")
		})
	}
}

func TestViews_StoreUnavailable(t *testing.T) {
	s := newTestServer(t, unavailableStore{})

	for _, path := range []string{"/income", "/stats"} {
		t.Run(path, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusBadGateway, w.Code)
		})
	}
}

func TestReportJSON(t *testing.T) {
	s := newTestServer(t, memory.New(seedRecords()...))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "850", got.Totals.Income.String())
	assert.Equal(t, "650", got.Totals.Net.String())
	assert.Equal(t, 4, got.Totals.Records)
	assert.Equal(t, 12, got.Units.Wheat())
}

func TestReportJSON_Category(t *testing.T) {
	s := newTestServer(t, memory.New(seedRecords()...))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/report?category=Expense", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Totals.Records)
	assert.True(t, got.Totals.Income.IsZero())
}

func TestReportJSON_Errors(t *testing.T) {
	bad := serve(newTestServer(t, memory.New()), httptest.NewRequest(http.MethodGet, "/api/report?category=Gift", nil))
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	down := serve(newTestServer(t, unavailableStore{}), httptest.NewRequest(http.MethodGet, "/api/report", nil))
	assert.Equal(t, http.StatusBadGateway, down.Code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, memory.New())

	health := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"status":"ok"`)

	ready := serve(s, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, ready.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(ready.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, memory.New())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=3600")
}

func TestShutdown_Idempotent(t *testing.T) {
	s := newTestServer(t, memory.New())

	assert.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, s.Shutdown(context.Background()))
}
