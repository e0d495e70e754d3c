package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestGinMiddlewarePropagatesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	prev := Default()
	SetDefault(NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true}))
	t.Cleanup(func() { SetDefault(prev) })

	var seen string
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/things/:id", func(c *gin.Context) {
		seen = TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/things/42", nil)
	req.Header.Set(TraceHeader, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen != "trace-1" {
		t.Errorf("handler saw trace id %q", seen)
	}
	if got := w.Header().Get(TraceHeader); got != "trace-1" {
		t.Errorf("response trace header = %q", got)
	}

	entry := decodeLine(t, &buf)
	if entry["path"] != "/things/:id" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["status_code"] != float64(http.StatusTeapot) {
		t.Errorf("status_code = %v", entry["status_code"])
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
}

func TestGinMiddlewareGeneratesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(w.Header().Get(TraceHeader)) != 32 {
		t.Errorf("generated trace header = %q", w.Header().Get(TraceHeader))
	}
}
