package obs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSQLOperation(t *testing.T) {
	cases := map[string]string{
		"select * from store_prices": "SELECT",
		"  INSERT INTO stores":       "INSERT",
		"\n\tDELETE FROM store_prices p USING stores s": "DELETE",
		"": "QUERY",
	}
	for sql, want := range cases {
		if got := sqlOperation(sql); got != want {
			t.Fatalf("sqlOperation(%q) = %q, want %q", sql, got, want)
		}
	}
}

func TestTruncateSQL(t *testing.T) {
	if got := truncateSQL("SELECT  1\n FROM\tstores"); got != "SELECT 1 FROM stores" {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
	long := "SELECT " + strings.Repeat("x", 400)
	if got := truncateSQL(long); len(got) != maxStatementLen+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation %d", len(got))
	}
}

func TestPGXTracerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var tracer PGXTracer
	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT chain FROM stores WHERE city = $1", Args: []any{"haifa"}})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 2")})

	batch := &pgx.Batch{}
	batch.Queue("INSERT INTO stores VALUES ($1)", "a")
	batch.Queue("INSERT INTO store_prices VALUES ($1)", "b")
	ctx = tracer.TraceBatchStart(context.Background(), nil, pgx.TraceBatchStartData{Batch: batch})
	tracer.TraceBatchQuery(ctx, nil, pgx.TraceBatchQueryData{SQL: "INSERT INTO stores VALUES ($1)", CommandTag: pgconn.NewCommandTag("INSERT 0 1")})
	tracer.TraceBatchQuery(ctx, nil, pgx.TraceBatchQueryData{SQL: "INSERT INTO store_prices VALUES ($1)", Err: errors.New("fk violation")})
	tracer.TraceBatchEnd(ctx, nil, pgx.TraceBatchEndData{Err: errors.New("fk violation")})

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "pgx.select" || spans[0].Status().Code == codes.Error {
		t.Fatalf("unexpected query span %q %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "pgx.batch" || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected batch span %q %v", spans[1].Name(), spans[1].Status())
	}
	if n := len(spans[1].Events()); n < 2 {
		t.Fatalf("expected batch query events, got %d", n)
	}
}
