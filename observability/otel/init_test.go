package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , =skip, broken, x-tenant = rico ")
	require.Equal(t, map[string]string{"authorization": "Bearer abc", "x-tenant": "rico"}, headers)
}

func TestSamplerHonoursRatio(t *testing.T) {
	require.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 1.5}.sampler().Description(), "AlwaysOnSampler")
	ratio := Config{SampleRatio: 0.25}.sampler().Description()
	require.Contains(t, ratio, "ParentBased")
	require.Contains(t, ratio, "TraceIDRatioBased{0.25}")
}

func TestResourceCarriesServiceAndEnvironment(t *testing.T) {
	res, err := Config{ServiceName: "ricod", Environment: "staging"}.resource()
	require.NoError(t, err)
	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "ricod", name.AsString())
	env, ok := res.Set().Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	require.Equal(t, "staging", env.AsString())
}

func TestJoinShutdownStopsInReverseAndKeepsErrors(t *testing.T) {
	var order []string
	first := errors.New("trace flush")
	second := errors.New("metric flush")
	stop := joinShutdown([]Shutdown{
		func(context.Context) error { order = append(order, "traces"); return first },
		func(context.Context) error { order = append(order, "metrics"); return second },
	})
	err := stop(context.Background())
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, second)
	require.Equal(t, []string{"metrics", "traces"}, order)
}
