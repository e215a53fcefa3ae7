package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"survey-offers/internal/handler/http/requestid"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func attrs(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RecordsServerSpan(t *testing.T) {
	exporter := installRecorder(t)
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/providers/cpx/reset", nil)
	req = req.WithContext(requestid.WithRequestID(req.Context(), "req-42"))
	rec := serve(h, req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /admin/providers/:id/reset", span.Name)
	assert.Equal(t, trace.SpanKindServer, span.SpanKind)

	got := attrs(span)
	assert.Equal(t, "POST", got["http.method"].AsString())
	assert.Equal(t, "/admin/providers/:id/reset", got["http.route"].AsString())
	assert.Equal(t, int64(http.StatusNoContent), got["http.status_code"].AsInt64())
	assert.Equal(t, "req-42", got["request.id"].AsString())
	assert.Equal(t, codes.Unset, span.Status.Code)

	assert.Equal(t, span.SpanContext.TraceID().String(), rec.Header().Get(TraceIDHeader))
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	exporter := installRecorder(t)
	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	var inner trace.SpanContext
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/offers", nil)
	req.Header.Set("traceparent", parent)
	serve(h, req)

	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", inner.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", exporter.GetSpans()[0].Parent.SpanID().String())
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		code int
		want codes.Code
	}{
		{name: "server error", code: http.StatusBadGateway, want: codes.Error},
		{name: "client error", code: http.StatusNotFound, want: codes.Unset},
		{name: "implicit ok", code: 0, want: codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := installRecorder(t)
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.code != 0 {
					w.WriteHeader(tt.code)
				}
			}))
			serve(h, httptest.NewRequest(http.MethodGet, "/providers/health", nil))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.want, spans[0].Status.Code)
		})
	}
}

func TestSetup(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	_, err := Setup(Config{})
	require.Error(t, err)

	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := Setup(Config{ServiceName: "survey-offers", ServiceVersion: "test", Exporter: exporter})
	require.NoError(t, err)

	_, span := GetTracer().Start(context.Background(), "startup")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// The in-memory exporter forgets its spans on shutdown, so flush the
	// batcher and read them first.
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok, "Setup installs the SDK provider")
	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.NoError(t, shutdown(context.Background()))

	require.Len(t, spans, 1)
	assert.Equal(t, "startup", spans[0].Name)

	svc, ok := spans[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "survey-offers", svc.AsString())
}
