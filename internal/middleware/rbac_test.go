package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestRequireRoleAllowsListedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_role", c.Get("X-Test-Role"))
		return c.Next()
	})
	app.Get("/guarded", RequireRole(RoleSupervisor, RoleStudent), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	cases := map[string]int{
		"supervisor": fiber.StatusOK,
		"Student":    fiber.StatusOK,
		"admin":      fiber.StatusForbidden,
		"":           fiber.StatusForbidden,
	}

	for role, expected := range cases {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("X-Test-Role", role)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, expected, resp.StatusCode, "role %q", role)
	}
}

func TestRequireRoleWithoutLocals(t *testing.T) {
	app := fiber.New()
	app.Get("/guarded", RequireRole(RoleSupervisor), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/guarded", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireInternalToken(t *testing.T) {
	app := fiber.New()
	app.Post("/internal", RequireInternalToken("secret"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/internal", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	req.Header.Set("X-Internal-Token", "secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireInternalTokenUnconfiguredDeniesAll(t *testing.T) {
	app := fiber.New()
	app.Post("/internal", RequireInternalToken(""), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	req.Header.Set("X-Internal-Token", "")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
