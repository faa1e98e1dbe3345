package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlcache/internal/eventbus"
	events "github.com/hanpama/gqlcache/internal/events"
	reqid "github.com/hanpama/gqlcache/internal/reqid"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches cache event subscribers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Attach(bus, otel.Tracer("gqlcache"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach turns read and write events on bus into spans of tracer. Start and
// finish events are paired by the request id in their context.
func Attach(bus *eventbus.Bus, tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register(bus)
}

type subscriber struct {
	tracer     trace.Tracer
	readSpans  sync.Map // rid -> trace.Span
	writeSpans sync.Map // rid -> trace.Span
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.Subscribe(bus, func(ctx context.Context, e events.ReadStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "cache.read")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.Operation),
				attribute.String("cache.root_key", e.RootKey),
			)
			s.readSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.ReadFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.readSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			endSpan(span, e.Err)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.WriteStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "cache.write")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.Operation),
				attribute.String("cache.root_key", e.RootKey),
				attribute.Bool("cache.optimistic", e.MutationID != uuid.Nil),
			)
			s.writeSpans.Store(rid, span)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.WriteFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.writeSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.Int("cache.records", e.Records),
				attribute.Int("cache.changed_fields", e.Changed),
			)
			endSpan(span, e.Err)
		}),

		eventbus.Subscribe(bus, func(ctx context.Context, e events.RollbackFinish) {
			_, span := s.tracer.Start(ctx, "cache.rollback")
			span.SetAttributes(
				attribute.String("cache.mutation_id", e.MutationID.String()),
				attribute.Bool("cache.layer_found", e.Found),
				attribute.Int("cache.changed_fields", e.Changed),
			)
			span.End()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
