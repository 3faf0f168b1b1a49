package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/dispatch-service/internal/config"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRecommendation("MatrixFactorization", "ok")
	m.RecordFallback("MatrixFactorization", "model_unavailable")
	m.RecordFallback("MatrixFactorization", "model_unavailable")
	m.RecordAutoDispatch("assigned")
	m.RecordRetrain("trained", 2*time.Second)
	m.RecordRetrain("insufficient_data", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.recommendations.WithLabelValues("MatrixFactorization", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("MatrixFactorization", "model_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoDispatch.WithLabelValues("assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrains.WithLabelValues("insufficient_data")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.retrainDuration))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordRecommendation("WorkloadOnly", "ok")
		m.RecordFallback("ZoneBased", "empty")
		m.RecordAutoDispatch("assigned")
		m.RecordRetrain("trained", time.Second)
	})
}

func TestRequestLoggerUsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	app := fiber.New()
	app.Use(RequestLogger(zaptest.NewLogger(t), m))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for _, id := range []string{"a", "b"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tickets/"+id, nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/tickets/:id", "GET", "204")))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
