package telemetry

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracingDisabled(t *testing.T) {
	logger, hook := test.NewNullLogger()

	shutdown, err := SetupTracing(context.Background(), TraceConfig{ServiceName: "photoflow-api", Exporter: "none"}, logger)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "tracing exporter disabled")
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil)
	assert.Error(t, err)

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil)
	assert.Error(t, err)
}

func TestTracerIsNamedPerComponent(t *testing.T) {
	assert.NotNil(t, Tracer("worker"))
}
