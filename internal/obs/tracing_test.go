package obs_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/storefront-api/internal/obs"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestEndSpanRecordsFailure(t *testing.T) {
	recorder := installRecorder(t)

	_, ok := obs.StartSpan(context.Background(), "pricing.ComputeTotals")
	obs.EndSpan(ok, nil)
	_, failed := obs.StartSpan(context.Background(), "currency.FetchRates")
	obs.EndSpan(failed, errors.New("provider down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "pricing.ComputeTotals", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := installRecorder(t)

	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Get("/currency/multiplier", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/currency/multiplier?code=DEU", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /currency/multiplier", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "storefront-api", Exporter: "zipkin"})
	require.Error(t, err)
}
