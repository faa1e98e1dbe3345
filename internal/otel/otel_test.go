package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/gqlcache/internal/eventbus"
	events "github.com/hanpama/gqlcache/internal/events"
	reqid "github.com/hanpama/gqlcache/internal/reqid"
)

func TestAttach(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	bus := eventbus.New()
	unsubscribe := Attach(bus, tp.Tracer("test"))

	readCtx, _ := reqid.NewContext(context.Background())
	writeCtx, _ := reqid.NewContext(context.Background())

	eventbus.Publish(readCtx, bus, events.ReadStart{Operation: "Hero", RootKey: "QUERY_ROOT"})
	eventbus.Publish(writeCtx, bus, events.WriteStart{Operation: "Hero", RootKey: "QUERY_ROOT"})
	eventbus.Publish(writeCtx, bus, events.WriteFinish{Operation: "Hero", RootKey: "QUERY_ROOT", Records: 2, Changed: 5})
	eventbus.Publish(readCtx, bus, events.ReadFinish{Operation: "Hero", RootKey: "QUERY_ROOT", Err: errors.New("cache miss")})

	ended := recorder.Ended()
	names := make([]string, len(ended))
	for i, s := range ended {
		names[i] = s.Name()
	}
	if diff := cmp.Diff([]string{"cache.write", "cache.read"}, names); diff != "" {
		t.Fatalf("ended spans mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, codes.Error, ended[1].Status().Code)
	require.Equal(t, codes.Unset, ended[0].Status().Code)

	unsubscribe()
	eventbus.Publish(readCtx, bus, events.ReadStart{Operation: "Hero"})
	require.Empty(t, recorder.Started()[2:])
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(eventbus.New(), "", "gqlcache")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
