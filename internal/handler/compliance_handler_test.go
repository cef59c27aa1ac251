package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/handler"
	"github.com/mentorium/supervision-api/internal/middleware"
)

type mockComplianceService struct {
	result dto.ComplianceSweepResponse
	err    error
	calls  int
}

func (m *mockComplianceService) Sweep(context.Context) (dto.ComplianceSweepResponse, error) {
	m.calls++
	return m.result, m.err
}

func newComplianceTestApp(svc *mockComplianceService, token string) *fiber.App {
	app := fiber.New()
	internal := app.Group("/api/v1/internal", middleware.RequireInternalToken(token))
	handler.NewComplianceHandler(svc, zerolog.New(io.Discard)).Register(internal)
	return app
}

func TestComplianceHandlerSweep(t *testing.T) {
	svc := &mockComplianceService{result: dto.ComplianceSweepResponse{
		Checked:     4,
		Overdue:     2,
		EvaluatedAt: time.Now().UTC(),
	}}
	app := newComplianceTestApp(svc, "scheduler-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/compliance/sweep", nil)
	req.Header.Set("X-Internal-Token", "scheduler-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.calls)

	var body struct {
		Data dto.ComplianceSweepResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, 4, body.Data.Checked)
	require.Equal(t, 2, body.Data.Overdue)
}

func TestComplianceHandlerRequiresToken(t *testing.T) {
	svc := &mockComplianceService{}
	app := newComplianceTestApp(svc, "scheduler-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/compliance/sweep", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.calls)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/internal/compliance/sweep", nil)
	req.Header.Set("X-Internal-Token", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestComplianceHandlerSweepFailure(t *testing.T) {
	svc := &mockComplianceService{err: errors.New("store down")}
	app := newComplianceTestApp(svc, "scheduler-token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/compliance/sweep", nil)
	req.Header.Set("X-Internal-Token", "scheduler-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
