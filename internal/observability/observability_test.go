package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestObserveDB(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("users.find_by_email", func() error { return pgx.ErrNoRows })
	_ = p.ObserveDB("users.create", func() error { return &pgconn.PgError{Code: "23505"} })
	_ = p.ObserveDB("users.create", func() error { return nil })

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.find_by_email", "unknown")); got != 0 {
		t.Fatalf("no rows should not count as an error, got %v", got)
	}
	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.create", "unique_violation")); got != 1 {
		t.Fatalf("unique_violation count = %v, want 1", got)
	}
}

func TestClassifyDBErr(t *testing.T) {
	tests := map[string]error{
		"unique_violation": &pgconn.PgError{Code: "23505"},
		"pg_42P01":         &pgconn.PgError{Code: "42P01"},
		"timeout":          context.DeadlineExceeded,
		"canceled":         context.Canceled,
		"connection":       errors.New("failed to connect to host"),
		"unknown":          errors.New("boom"),
	}

	for want, err := range tests {
		if got := classifyDBErr(err); got != want {
			t.Fatalf("classifyDBErr(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestNilPromHelpers(t *testing.T) {
	var p *Prom
	p.ObserveSignIn("credentials", "ok")
	p.ObserveGate("allow")
	p.ObserveSession("absent")
}

func TestLoggerAddsServiceAndCorrelation(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "authgate", "dev")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx := WithRequestID(context.Background(), "req-42")
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	log.InfoContext(ctx, "hello")
	span.End()

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}

	want := map[string]any{
		"service":    "authgate",
		"env":        "dev",
		"request_id": "req-42",
		"trace_id":   span.SpanContext().TraceID().String(),
		"span_id":    span.SpanContext().SpanID().String(),
	}
	for k, v := range want {
		if line[k] != v {
			t.Fatalf("%s = %v, want %v (line %v)", k, line[k], v, line)
		}
	}
	if _, ok := line["trace_sampled"]; ok {
		t.Fatalf("sampled spans should not carry trace_sampled: %v", line)
	}
}

func TestLoggerWithoutRequestContext(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "authgate-migrate", "prod")

	log.Debug("dropped")
	log.Info("migrations_applied")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("prod logger should emit exactly one info line: %v (%s)", err, buf.String())
	}
	if line["service"] != "authgate-migrate" {
		t.Fatalf("service = %v", line["service"])
	}
	for _, k := range []string{"request_id", "trace_id", "span_id"} {
		if _, ok := line[k]; ok {
			t.Fatalf("%s should be absent without a request context: %v", k, line)
		}
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		got := newSampler(tt.ratio).Description()
		if !strings.Contains(got, "ParentBased") || !strings.Contains(got, tt.want) {
			t.Fatalf("newSampler(%v) = %q, want ParentBased with %q", tt.ratio, got, tt.want)
		}
	}
}

func TestNewResourceCarriesVersion(t *testing.T) {
	res, err := newResource(context.Background(), TracerConfig{ServiceName: "authgate", Env: "test"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	if attrs["service.name"] != "authgate" || attrs["service.version"] != "dev" || attrs["deployment.environment"] != "test" {
		t.Fatalf("unexpected resource attributes: %v", attrs)
	}
}

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "authgate"})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
