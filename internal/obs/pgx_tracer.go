package obs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// PGXTracer turns catalog queries into client spans and logs the ones slower than
// SlowQuery. A zero SlowQuery disables the log.
type PGXTracer struct {
	Logger    zerolog.Logger
	SlowQuery time.Duration
}

// TraceQueryStart opens a span named after the leading SQL keyword.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	verb := sqlVerb(data.SQL)
	ctx, _ = otel.Tracer("storefront/catalog-db").Start(ctx, "catalog.db "+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", verb),
			attribute.String("db.query.text", statement(data.SQL)),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd closes the span opened by TraceQueryStart.
func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	switch {
	case data.Err == nil:
		span.SetAttributes(attribute.Int64("db.response.rows", data.CommandTag.RowsAffected()))
	case !errors.Is(data.Err, pgx.ErrNoRows):
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.End()

	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok || t.SlowQuery <= 0 {
		return
	}
	if took := time.Since(start.at); took >= t.SlowQuery {
		t.Logger.Warn().Dur("duration", took).Str("statement", statement(start.sql)).Msg("slow catalog query")
	}
}

func sqlVerb(sql string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	if verb == "" {
		return "QUERY"
	}
	return strings.ToUpper(verb)
}

func statement(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > maxStatementLen {
		return sql[:maxStatementLen] + "..."
	}
	return sql
}
