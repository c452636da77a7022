package dashboards

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossfilter/internal/adapters/testutil"
	"crossfilter/internal/blob"
	"crossfilter/internal/core"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Session sessionView `json:"session"`
	}](t, rec)
	if resp.Session.ID == "" || resp.Session.Filter == nil {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if resp.Session.Widgets["p1_year_range"] != "[1952, 2007]" {
		t.Fatalf("expected seeded widgets, got %v", resp.Session.Widgets)
	}
	return resp.Session.ID
}

func TestHandlerDashboard(t *testing.T) {
	h := NewHandler(newTestService(t))
	rec := doRequest(t, h, http.MethodGet, "/api/v1/dashboard/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[dashboardResponse](t, rec)
	if resp.Bounds != (core.FilterRange{Min: 1952, Max: 2007}) || resp.Dataset != "gapminder" {
		t.Fatalf("unexpected dashboard %+v", resp)
	}
	if len(resp.Controls) != 2 || resp.Controls[1].ID != "p2_year_range" {
		t.Fatalf("unexpected controls %+v", resp.Controls)
	}
	if got := strings.Join(resp.Controls[1].TargetFieldPaths, ","); got != "scatter_chart.year,bar_chart.year" {
		t.Fatalf("unexpected targets %s", got)
	}

	if rec := doRequest(t, h, http.MethodPost, "/api/v1/dashboard", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandlerPropagatesInteractionAcrossPages(t *testing.T) {
	h := NewHandler(newTestService(t))
	id := createSession(t, h)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/controls/p1_year_range", `{"value":[1980,2000]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("interact: %d %s", rec.Code, rec.Body.String())
	}
	result := decode[interactResponse](t, rec)
	if !result.StoreChanged || result.Value != (core.FilterRange{Min: 1980, Max: 2000}) {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Applied) != 1 || result.Applied[0] != "p2_year_range" {
		t.Fatalf("expected page two widget applied, got %v", result.Applied)
	}
	var rendered []string
	for _, r := range result.Renders {
		if r.Error != "" || r.Artifact == nil {
			t.Fatalf("render failed: %+v", r)
		}
		rendered = append(rendered, r.Component)
	}
	if got := strings.Join(rendered, ","); got != "line_chart,scatter_chart,bar_chart" {
		t.Fatalf("unexpected renders %s", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/filter", "")
	filter := decode[struct {
		Initialized bool             `json:"initialized"`
		Filter      core.FilterRange `json:"filter"`
	}](t, rec)
	if !filter.Initialized || filter.Filter != (core.FilterRange{Min: 1980, Max: 2000}) {
		t.Fatalf("unexpected filter %+v", filter)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/components/bar_chart", "")
	artifact := decode[struct {
		Artifact core.ChartArtifact `json:"artifact"`
	}](t, rec).Artifact
	if artifact.Filter == nil || *artifact.Filter != (core.FilterRange{Min: 1980, Max: 2000}) {
		t.Fatalf("expected bar chart filtered, got %+v", artifact.Filter)
	}

	// Scenario B: repeating the value changes nothing.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/controls/p2_year_range", `{"value":[1980,2000]}`)
	result = decode[interactResponse](t, rec)
	if result.StoreChanged || len(result.Applied) != 0 || len(result.Renders) != 0 {
		t.Fatalf("expected no-op interaction, got %+v", result)
	}
}

func TestHandlerRenderFormats(t *testing.T) {
	h := NewHandler(newTestService(t))
	id := createSession(t, h)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/components/line_chart?format=csv", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected csv response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "series,x,y,label,size,hover\n") {
		t.Fatalf("unexpected csv body %s", rec.Body.String())
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/components/line_chart?format=html", "")
	if !strings.Contains(rec.Body.String(), "GDP per Capita Over Time") {
		t.Fatalf("unexpected html body %s", rec.Body.String())
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id+"/components/line_chart?format=pdf", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandlerErrors(t *testing.T) {
	h := NewHandler(newTestService(t))
	id := createSession(t, h)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown session", http.MethodGet, "/api/v1/sessions/missing/filter", "", http.StatusNotFound},
		{"unknown control", http.MethodPost, "/api/v1/sessions/" + id + "/controls/p9_year_range", `{"value":[1980,2000]}`, http.StatusNotFound},
		{"unknown component", http.MethodGet, "/api/v1/sessions/" + id + "/components/pie_chart", "", http.StatusNotFound},
		{"inverted range", http.MethodPost, "/api/v1/sessions/" + id + "/controls/p1_year_range", `{"value":[2000,1980]}`, http.StatusUnprocessableEntity},
		{"missing value", http.MethodPost, "/api/v1/sessions/" + id + "/controls/p1_year_range", `{}`, http.StatusBadRequest},
		{"bad payload", http.MethodPost, "/api/v1/sessions/" + id + "/controls/p1_year_range", `{"value":"x"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/v1/sessions/" + id + "/controls/p1_year_range", "", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/v1/sessions/" + id + "/widgets", "", http.StatusNotFound},
		{"exports disabled", http.MethodGet, "/api/v1/exports/abc", "", http.StatusNotFound},
		{"metrics disabled", http.MethodGet, "/metrics", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	if rec := doRequest(t, &Handler{}, http.MethodGet, "/api/v1/dashboard", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without service, got %d", rec.Code)
	}
}

func TestHandlerClampsOutOfRangeValues(t *testing.T) {
	h := NewHandler(newTestService(t))
	id := createSession(t, h)
	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/controls/p2_year_range", `{"value":[1900,1990]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("interact: %d %s", rec.Code, rec.Body.String())
	}
	result := decode[interactResponse](t, rec)
	if result.Value != (core.FilterRange{Min: 1952, Max: 1990}) || len(result.Clamped) != 1 {
		t.Fatalf("expected clamped value, got %+v", result)
	}
}

func TestHandlerSessionLifecycle(t *testing.T) {
	h := NewHandler(newTestService(t))
	id := createSession(t, h)
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("get session: %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, "/api/v1/sessions/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete session: %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/sessions/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandlerExports(t *testing.T) {
	svc := newTestService(t)
	worker := NewWorker(svc, blob.NewMemory(), &MemoryAuditLog{})
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })
	h := NewHandler(svc)
	h.Exports = worker
	id := createSession(t, h)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/exports", `{"component":"line_chart","formats":["json","html"],"requested_by":"analyst"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %s", rec.Code, rec.Body.String())
	}
	record := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec).Export
	waitForExport(t, worker, record.ID)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/exports/"+record.ID, "")
	got := decode[struct {
		Export ExportRecord `json:"export"`
	}](t, rec).Export
	if got.Status != ExportStatusSucceeded || len(got.Artifacts) != 2 {
		t.Fatalf("unexpected export %+v", got)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/exports/unknown", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/exports", `{"component":"line_chart","formats":["xlsx"]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/api/v1/sessions/"+id+"/exports", `{"component":"pie_chart"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerServesPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("prometheus recorder: %v", err)
	}
	svc, err := testutil.NewGapminderService(context.Background(), core.WithMetricsRecorder(recorder))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	h := NewHandler(svc)
	h.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	createSession(t, h)

	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"crossfilter_operations_total", `operation="create_session"`, `operation="store.set"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}
