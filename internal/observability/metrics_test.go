package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	require.NotNil(t, APIRequests())
	require.NotNil(t, GradingRuns())
	require.NotNil(t, GradingStreamClients())
}

func TestMetricsHandlerExposesGradingCollectors(t *testing.T) {
	GradingInFlight().Set(0)
	GradingRuns().WithLabelValues(OutcomeScored).Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "edumark_grading_runs_in_flight"))
	require.True(t, strings.Contains(string(body), `edumark_grading_runs_total{outcome="scored"}`))
}
