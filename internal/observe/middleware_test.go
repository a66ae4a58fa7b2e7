package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestServer wires the middleware in front of a mux the way the batch
// command does, with in-memory metric and span sinks.
func newTestServer(t *testing.T, status int) (*http.ServeMux, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	mux := http.NewServeMux()
	mux.Handle("GET /jobs/{id}", Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})))
	return mux, reader, exp
}

func serve(mux *http.ServeMux, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Span(t *testing.T) {
	mux, _, exp := newTestServer(t, http.StatusNotFound)
	rec := serve(mux, "/jobs/greeting", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if got, want := spans[0].Name, "HTTP GET /jobs/{id}"; got != want {
		t.Errorf("span name = %q, want %q", got, want)
	}

	attrs := map[string]string{}
	for _, a := range spans[0].Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	want := map[string]string{
		"http.route":                "GET /jobs/{id}",
		"url.path":                  "/jobs/greeting",
		"http.response.status_code": "404",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("span attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if got := rec.Header().Get(TraceIDHeader); got != spans[0].SpanContext.TraceID().String() {
		t.Errorf("%s = %q, want the span's trace ID", TraceIDHeader, got)
	}
}

func TestMiddleware_ContinuesTraceparent(t *testing.T) {
	mux, _, exp := newTestServer(t, http.StatusOK)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := serve(mux, "/jobs/a", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})

	if got := rec.Header().Get(TraceIDHeader); got != traceID {
		t.Errorf("%s = %q, want %q", TraceIDHeader, got, traceID)
	}
	if rec.Header().Get("Traceparent") == "" {
		t.Error("response should carry the traceparent of the server span")
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("server span should be a child of the caller's span, got %+v", spans)
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	mux, reader, _ := newTestServer(t, http.StatusOK)
	for _, id := range []string{"a", "b", "c"} {
		serve(mux, "/jobs/"+id, nil)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "mouthpiece.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want a single route series", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	rt, _ := dp.Attributes.Value("route")
	method, _ := dp.Attributes.Value("method")
	if rt.AsString() != "GET /jobs/{id}" || method.AsString() != "GET" || dp.Count != 3 {
		t.Errorf("route %q method %q count %d, want GET /jobs/{id} GET 3", rt.AsString(), method.AsString(), dp.Count)
	}
}

func TestRoute_FallsBackToPath(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	if got := route(req); got != "/metrics" {
		t.Errorf("route = %q, want /metrics", got)
	}
	req.Pattern = "GET /metrics"
	if got := route(req); got != "GET /metrics" {
		t.Errorf("route = %q, want the pattern", got)
	}
}
