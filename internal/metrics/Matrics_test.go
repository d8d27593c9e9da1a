package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/goupload/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareIncrementsCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	InitMetrics()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	// Сам факт, что не упали — уже норм для простого smoke-теста
}

func TestRegisterExposesMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	InitMetrics()

	r := gin.New()
	Register(r, "/metrics")

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected body from /metrics, got empty")
	}
}

func TestUploadObserverCountsEvents(t *testing.T) {
	InitMetrics()

	observe := UploadObserver()

	startedBefore := testutil.ToFloat64(uploadSessionsStarted)
	acceptedBefore := testutil.ToFloat64(uploadChunksAccepted)
	bytesBefore := testutil.ToFloat64(uploadBytesReceived)
	completedBefore := testutil.ToFloat64(uploadSessionsFinished.WithLabelValues("completed"))

	observe(upload.Event{Type: upload.EventSessionCreated})
	observe(upload.Event{Type: upload.EventChunkAccepted, ChunkIndex: 0, ChunkSize: 1024})
	observe(upload.Event{Type: upload.EventChunkAccepted, ChunkIndex: 1, ChunkSize: 512})
	observe(upload.Event{Type: upload.EventSessionCompleted})

	if got := testutil.ToFloat64(uploadSessionsStarted) - startedBefore; got != 1 {
		t.Fatalf("expected 1 started session, got %v", got)
	}
	if got := testutil.ToFloat64(uploadChunksAccepted) - acceptedBefore; got != 2 {
		t.Fatalf("expected 2 accepted chunks, got %v", got)
	}
	if got := testutil.ToFloat64(uploadBytesReceived) - bytesBefore; got != 1536 {
		t.Fatalf("expected 1536 bytes received, got %v", got)
	}
	if got := testutil.ToFloat64(uploadSessionsFinished.WithLabelValues("completed")) - completedBefore; got != 1 {
		t.Fatalf("expected 1 completed session, got %v", got)
	}
}
