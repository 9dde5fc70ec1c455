package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFail_EnvelopeAndAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/orders/9999", nil)
	c.Writer.Header().Set("X-Request-ID", "rid-42")

	fail(c, http.StatusNotFound, ErrCodeNotFound, "order not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !c.IsAborted() {
		t.Error("fail did not abort the chain")
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeNotFound)
	}
	if resp.Message != "order not found" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.RequestID != "rid-42" {
		t.Errorf("request_id = %q, want echoed header value", resp.RequestID)
	}
}

func TestFail_OmitsEmptyRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/sync/reconcile", nil)

	fail(c, http.StatusInternalServerError, ErrCodeSyncFailed, "reconcile failed")

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := raw["request_id"]; present {
		t.Error("empty request_id should be omitted from the envelope")
	}
}

func TestOKAndNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	ok(c, http.StatusOK, gin.H{"created": 1, "updated": 0, "skipped": 2, "errors": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("ok status = %d", w.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["skipped"] != 2 {
		t.Errorf("body = %v", body)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	noContent(c)
	c.Writer.WriteHeaderNow()
	if w.Code != http.StatusNoContent {
		t.Fatalf("noContent status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("noContent wrote a body: %q", w.Body.String())
	}
}
