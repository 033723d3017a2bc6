package router

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/observability"
)

func TestRegisterExposesOpsRoutes(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{AppName: "GEMA Judge"}, Dependencies{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Judge", resp.Header.Get("X-Application"))

	observability.Admissions().WithLabelValues("admitted").Inc()
	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "submission_admission_total")
}
