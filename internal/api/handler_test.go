package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqltranslator/sqltranslator/internal/auth"
	"github.com/sqltranslator/sqltranslator/internal/config"
	"github.com/sqltranslator/sqltranslator/internal/report"
	"github.com/sqltranslator/sqltranslator/internal/translate"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sqltranslator_http_requests_total") {
		t.Fatal("expected http request metrics")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLTR_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:ui:translator,k2:ops:report_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Translator:     &fakeTranslator{result: translate.Result{OutputText: "SELECT 1"}},
		Reports:        &fakeReports{},
	})

	tests := []struct {
		method, path, key string
		want              int
	}{
		{http.MethodPost, "/api/translate", "", http.StatusUnauthorized},
		{http.MethodPost, "/api/translate", "k1", http.StatusOK},
		{http.MethodPost, "/api/translate", "k2", http.StatusForbidden},
		{http.MethodGet, "/v1/history/report", "k1", http.StatusForbidden},
		{http.MethodGet, "/v1/history/report", "k2", http.StatusOK},
		{http.MethodGet, "/v1/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		var body io.Reader
		if tt.method == http.MethodPost {
			body = strings.NewReader(`{"inputText":"one"}`)
		}
		req := httptest.NewRequest(tt.method, tt.path, body)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Fatalf("%s %s key=%q: status = %d, want %d (body=%s)", tt.method, tt.path, tt.key, rr.Code, tt.want, rr.Body.String())
		}
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SQLTR_AUTH_REQUIRED": "true"})
	h := NewHandler(cfg, Dependencies{Translator: &fakeTranslator{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`{"inputText":"x"}`)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestConfigReadinessChecks(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.History.Enabled = true
	cfg.History.DSN = ""
	if err := CheckHistoryConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected history dsn error")
	}
	cfg.ObjectStore.Enabled = true
	cfg.ObjectStore.Bucket = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected bucket error")
	}
	cfg.ObjectStore.Enabled = false
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("disabled object store should be ready: %v", err)
	}
}

func TestReportEndpoint(t *testing.T) {
	reports := &fakeReports{out: report.Report{Files: 1, Entries: 3, Rows: []report.Row{{Direction: "human_to_sql", Outcome: "success", Count: 3}}}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Reports: reports})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history/report?since=2026-03-01T00:00:00Z", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !reports.since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("since = %v", reports.since)
	}
	var out report.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if out.Entries != 3 || len(out.Rows) != 1 {
		t.Fatalf("report = %+v", out)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history/report?since=yesterday", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", rr.Code)
	}

	reports.err = errors.New("duckdb exploded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history/report", nil))
	if rr.Code != http.StatusInternalServerError || strings.Contains(rr.Body.String(), "duckdb") {
		t.Fatalf("failure status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestReportEndpointNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history/report", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRecoverMiddlewareTurnsPanicInto500(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Translator: panickingTranslator{},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(`{"inputText":"x"}`)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

type panickingTranslator struct{}

func (panickingTranslator) Translate(context.Context, translate.Request) (translate.Result, error) {
	panic("boom")
}

type fakeReports struct {
	since time.Time
	out   report.Report
	err   error
}

func (f *fakeReports) Build(_ context.Context, since time.Time) (report.Report, error) {
	f.since = since
	if f.err != nil {
		return report.Report{}, f.err
	}
	return f.out, nil
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("sqltranslator-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
