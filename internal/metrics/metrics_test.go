package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var _ MetricsCollector = (*Collector)(nil)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestRecordHTTPStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	if v := findMetric(t, reg, "expenfyre_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("200 count = %v, want 2", v)
	}
	if v := findMetric(t, reg, "expenfyre_http_status_total", map[string]string{"status_code": "429"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("429 count = %v, want 1", v)
	}
}

// TestRecordSheetsCall はカウンタとヒストグラムの両方に記録されることを検証する。
func TestRecordSheetsCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSheetsCall("rows", "ok", 0.2)
	c.RecordSheetsCall("rows", "rate_limited", 0.1)
	c.RecordSheetsBackoff("rows")

	if v := findMetric(t, reg, "expenfyre_sheets_calls_total", map[string]string{"operation": "rows", "outcome": "ok"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("ok calls = %v, want 1", v)
	}
	h := findMetric(t, reg, "expenfyre_sheets_latency_seconds", map[string]string{"operation": "rows"}).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("latency samples = %d, want 2", h.GetSampleCount())
	}
	if v := findMetric(t, reg, "expenfyre_sheets_backoff_total", map[string]string{"operation": "rows"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("backoffs = %v, want 1", v)
	}
}

func TestRecordAuthEventAndCleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("login")
	c.RecordCleanupDeleted("blacklist", 3)
	c.RecordCleanupDeleted("blacklist", 0)

	if v := findMetric(t, reg, "expenfyre_auth_events_total", map[string]string{"event": "login"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("login events = %v, want 1", v)
	}
	if v := findMetric(t, reg, "expenfyre_cleanup_deleted_total", map[string]string{"kind": "blacklist"}).GetCounter().GetValue(); v != 3 {
		t.Errorf("cleanup deleted = %v, want 3", v)
	}
}

// TestHandler_ServesMetrics はスクレイプでメトリクスが返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthEvent("refresh")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `expenfyre_auth_events_total{event="refresh"} 1`) {
		t.Errorf("body does not contain auth event metric:\n%s", body)
	}
}
