package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aegis/internal/platform/config"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "aegis-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsBadEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{OTLPEndpoint: "http://", ServiceName: "aegis-test"})
	require.Error(t, err)
}
