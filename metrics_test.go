package gourdiansession

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.sessionCreated(resultOK)
		m.verified(resultOK)
		m.updated(resultOK)
		m.refreshed(pathResolver, resultOK)
		m.degraded()
		m.cacheHit()
		m.cacheMiss()
		m.revoked()
	})
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.sessionCreated(resultOK)
	metrics.verified(resultOK)
	metrics.updated(resultOK)
	metrics.refreshed(pathResolver, resultOK)
	metrics.degraded()
	metrics.cacheHit()
	metrics.revoked()

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	assert.Panics(t, func() { NewMetrics(reg) }, "registering twice must fail")
	assert.NotNil(t, NewMetrics(nil))
}

func TestManagerMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	manager, _ := newTestManager(t, testConfig(), WithMetrics(metrics))
	ctx := context.Background()

	tokens := createTestSession(t, manager)
	_, err := manager.UpdateSession(ctx, tokens.AccessToken, SessionUpdate{})
	require.NoError(t, err)
	_, _ = manager.UpdateSession(ctx, "garbage", SessionUpdate{})
	_, err = manager.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	_, _ = manager.RefreshSession(ctx, "garbage")
	_, _ = manager.CreateSession(ctx, CreateSessionInput{})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sessionsCreated.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sessionsCreated.WithLabelValues(resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.updates.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.updates.WithLabelValues(resultInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshes.WithLabelValues(pathResolver, resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.refreshes.WithLabelValues(pathNone, resultInvalid)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.degradedResolves))
}

func TestManagerTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	manager, _ := newTestManager(t, testConfig(), WithTracer(provider.Tracer("gourdiansession-test")))
	ctx := context.Background()

	tokens := createTestSession(t, manager)
	_, err := manager.VerifySession(ctx, tokens.AccessToken)
	require.NoError(t, err)
	_, err = manager.VerifySession(ctx, "garbage")
	require.Error(t, err)
	_, err = manager.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 4)

	names := make([]string, 0, len(spans))
	for _, span := range spans {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{
		"gourdiansession.CreateSession",
		"gourdiansession.VerifySession",
		"gourdiansession.VerifySession",
		"gourdiansession.RefreshSession",
	}, names)

	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, codes.Error, spans[2].Status().Code)
	assert.Contains(t, spans[3].Attributes(), attribute.String("team_access.path", pathResolver))
}
