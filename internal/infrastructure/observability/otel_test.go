package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTracing_WithoutEndpoint(t *testing.T) {
	ctx := context.Background()

	shutdown, err := SetupTracing(ctx, TracingConfig{ServiceName: "stockledger-test", Environment: "test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(ctx))
}
