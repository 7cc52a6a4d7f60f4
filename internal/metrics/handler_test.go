package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ReturnsHandler はスクレイプ用ハンドラーが正常に返ることを検証する。
func TestHandler_ReturnsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	handler := Handler(reg)
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}
}

// TestHandler_ServesMetrics はメトリクスがテキスト形式で返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordUserCreated()

	handler := Handler(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "userapi_users_created_total") {
		t.Error("response should contain userapi_users_created_total metric")
	}
}

// TestHandler_ExposesHTTPRequestMetrics はHTTPリクエストのメトリクスが公開されることを検証する。
func TestHandler_ExposesHTTPRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTPRequest(http.MethodPost, "/api/user/store", http.StatusBadRequest, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	want := `userapi_http_requests_total{method="POST",route="/api/user/store",status="400"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("response should contain %q", want)
	}
}
