package obs_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/storefront/internal/obs"
)

func TestPGXTracerSpansAndSlowQueries(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var logs bytes.Buffer
	tracer := obs.PGXTracer{Logger: zerolog.New(&logs), SlowQuery: time.Nanosecond}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "  select id,\n  title from products where id = $1"})
	time.Sleep(time.Millisecond)
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "update products set title = $1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "catalog.db SELECT", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "postgresql", attrs["db.system"])
	require.Equal(t, "select id, title from products where id = $1", attrs["db.query.text"])

	require.Equal(t, "catalog.db UPDATE", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)

	require.Contains(t, logs.String(), "slow catalog query")
	require.Contains(t, logs.String(), "select id, title from products")
}
