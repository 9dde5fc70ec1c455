package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureGlobal swaps the global zerolog logger for one writing into buf and
// restores it on cleanup.
func captureGlobal(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	orig := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = orig })
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/orders", func(c *gin.Context) {
		rid, _ := c.Get(requestIDKey)
		c.String(http.StatusOK, asString(rid))
	})

	// No inbound header: a fresh id is generated and echoed back.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if got := w.Header().Get(requestIDHeader); got == "" || got != w.Body.String() {
		t.Fatalf("header %q body %q, want matching non-empty ids", got, w.Body.String())
	}

	// Inbound header is reused untouched.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(requestIDHeader, "corr-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "corr-123" {
		t.Fatalf("request id = %q, want corr-123", got)
	}
}

func TestLogger_LevelsFollowOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok", http.StatusOK, "info"},
		{"client error", http.StatusNotFound, "warn"},
		{"server error", http.StatusBadGateway, "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			captureGlobal(t, &buf)

			r := gin.New()
			r.Use(RequestID(), Logger())
			r.GET("/orders/:number", func(c *gin.Context) { c.Status(tc.status) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/1001?verbose=1", nil))

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log not valid JSON: %v (%s)", err, buf.String())
			}
			if entry["level"] != tc.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tc.wantLevel)
			}
			if entry["path"] != "/orders/:number" {
				t.Errorf("path = %v, want route template", entry["path"])
			}
			if entry["request_id"] == "" {
				t.Error("missing request_id in access log")
			}
		})
	}
}

func TestLoggerFrom_RequestScopedAndFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	captureGlobal(t, &buf)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/orders", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from handler")
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if !strings.Contains(buf.String(), `"from handler"`) {
		t.Errorf("handler log entry missing: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"request_id"`) {
		t.Errorf("handler log entry lacks request fields: %s", buf.String())
	}

	// Without Logger() in the chain the fallback must still be usable.
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if lg := LoggerFrom(c); lg == nil {
		t.Fatal("LoggerFrom returned nil without Logger middleware")
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	captureGlobal(t, &buf)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.POST("/sync/reconcile", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/reconcile", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["code"] != "internal_error" || body["message"] != "internal server error" {
		t.Errorf("unexpected error body: %v", body)
	}
	if body["request_id"] == "" {
		t.Error("panic response lost the request id")
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Error("panic not logged")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Errorf("truncate with max 0 = %q, want passthrough", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate below cap = %q", got)
	}
}
