package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-heal/internal/metrics"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/monitor"
)

func newTestRouter(t *testing.T) (http.Handler, *monitor.Orchestrator) {
	t.Helper()
	o, err := monitor.New(models.DefaultMonitoringConfig(), monitor.Deps{})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = o.Stop(context.Background()) })

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	return NewHTTPHandler(o, reg, nil), o
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, target, err)
		}
	}
	return rec, out
}

func TestHTTPCaptureLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/v1/errors",
		`{"message":"invalid email format","type":"validation","severity":"low","context":{"workflowId":"wf-7"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	record, _ := body["record"].(map[string]any)
	id, _ := record["id"].(string)
	if id == "" {
		t.Fatalf("expected record id in %v", body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/errors/"+id, "")
	if rec.Code != http.StatusOK || body["message"] != "invalid email format" {
		t.Fatalf("get: %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/errors/recent?minutes=5", "")
	if rec.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("recent: %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/errors?type=validation&workflowId=wf-7", "")
	if rec.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("query: %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/errors?start=15m", "")
	if rec.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("relative start: %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/v1/errors/"+id+"/resolve", `{"method":"manual","details":"user fixed input"}`)
	if rec.Code != http.StatusOK || body["resolved"] != true || body["resolutionMethod"] != "manual" {
		t.Fatalf("resolve: %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK || body["captured"].(float64) != 1 {
		t.Fatalf("stats: %d %v", rec.Code, body)
	}
}

func TestHTTPValidationErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	cases := []struct {
		method string
		target string
		body   string
		code   int
	}{
		{http.MethodPost, "/api/v1/errors", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/errors", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/errors", `{"message":"x","type":"cosmic"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/errors/recent?minutes=abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/errors?severity=urgent", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/errors?start=yesterday", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/errors/does-not-exist", "", http.StatusNotFound},
		{http.MethodPost, "/api/v1/errors/does-not-exist/resolve", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/patterns/unknown/root-cause", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec, _ := do(t, h, tc.method, tc.target, tc.body)
		if rec.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.target, tc.code, rec.Code, rec.Body.String())
		}
	}
}

func TestHTTPResolveRejectsUnknownMethod(t *testing.T) {
	h, o := newTestRouter(t)
	captured, err := o.Capture(context.Background(), monitor.CaptureInput{Message: "invalid zip code", Type: models.ErrorTypeValidation})
	if err != nil || captured == nil {
		t.Fatalf("capture: %v", err)
	}
	rec, _ := do(t, h, http.MethodPost, "/api/v1/errors/"+captured.ID+"/resolve", `{"method":"pending"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHTTPAnalysisEndpoints(t *testing.T) {
	h, o := newTestRouter(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := o.Capture(ctx, monitor.CaptureInput{Message: "invalid email format", Type: models.ErrorTypeValidation}); err != nil {
			t.Fatalf("capture: %v", err)
		}
	}
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rec, body := do(t, h, http.MethodGet, "/api/v1/patterns", "")
	if rec.Code != http.StatusOK || body["count"].(float64) < 1 {
		t.Fatalf("patterns: %d %v", rec.Code, body)
	}
	rec, body = do(t, h, http.MethodGet, "/api/v1/clusters", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clusters: %d %v", rec.Code, body)
	}
	if _, ok := body["clusters"]; !ok {
		t.Fatalf("clusters key missing: %v", body)
	}
	rec, body = do(t, h, http.MethodGet, "/api/v1/breakers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("breakers: %d %v", rec.Code, body)
	}
	if _, ok := body["corrections"]; !ok {
		t.Fatalf("corrections key missing: %v", body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/v1/analysis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analysis: %d %v", rec.Code, body)
	}
	for _, key := range []string{"trending", "predictions", "recommendations"} {
		if _, ok := body[key].([]any); !ok {
			t.Fatalf("analysis %s should be a list: %v", key, body)
		}
	}
	if fresh, _ := body["newPatterns"].([]any); len(fresh) != 1 {
		t.Fatalf("expected one new pattern, got %v", body["newPatterns"])
	}

	sig := o.Patterns()[0].Signature
	rec, body = do(t, h, http.MethodGet, "/api/v1/patterns/"+sig+"/records", "")
	if rec.Code != http.StatusOK || body["count"].(float64) != 3 {
		t.Fatalf("pattern records: %d %v", rec.Code, body)
	}
}

func TestHTTPCorrelations(t *testing.T) {
	h, o := newTestRouter(t)
	if _, err := o.Capture(context.Background(), monitor.CaptureInput{Message: "invalid email format", Type: models.ErrorTypeValidation}); err != nil {
		t.Fatalf("capture: %v", err)
	}

	for _, body := range []string{`{}`, `{"events":[]}`, `{"events":[{"type":"deploy"}]}`, `{"events":[{"timestamp":"2026-03-04T10:00:00Z"}]}`} {
		if rec, _ := do(t, h, http.MethodPost, "/api/v1/correlations", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}

	rec, body := do(t, h, http.MethodPost, "/api/v1/correlations", `{"events":[{"type":"deploy","timestamp":"2026-03-04T10:00:00Z"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("correlations: %d %s", rec.Code, rec.Body.String())
	}
	if _, ok := body["correlations"].([]any); !ok || body["count"].(float64) != 0 {
		t.Fatalf("expected an empty correlation list, got %v", body)
	}
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec, _ = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
