package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware("tilestream-test"))
	r.GET("/api/v1/healthz", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/api/v1/source/:z/:x/:y", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/api/v1/healthz", "/api/v1/source/3/2/1"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1 (health checks are not traced)", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/v1/source/:z/:x/:y" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["tilestream.z"].AsString() != "3" || attrs["tilestream.x"].AsString() != "2" {
		t.Errorf("route params not recorded: %v", span.Attributes())
	}
	if attrs["http.response.status_code"].AsInt64() != http.StatusBadGateway {
		t.Errorf("status attribute = %v", attrs["http.response.status_code"])
	}
}
