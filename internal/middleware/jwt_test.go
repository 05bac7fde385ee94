package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"id":   c.Locals("user_id"),
			"role": c.Locals("user_role"),
		})
	})
	return app
}

func TestJWTProtectedAcceptsBearerToken(t *testing.T) {
	token, err := IssueToken("secret", 42, "teacher", time.Hour, time.Now())
	require.NoError(t, err)

	app := newProtectedApp("secret")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedAcceptsLegacyTokenHeader(t *testing.T) {
	token, err := IssueToken("secret", 7, "student", time.Hour, time.Now())
	require.NoError(t, err)

	app := newProtectedApp("secret")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("token", token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	token, err := IssueToken("secret", 11, "student", time.Hour, time.Now())
	require.NoError(t, err)

	app := newProtectedApp("secret")
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsInvalidTokens(t *testing.T) {
	expired, err := IssueToken("secret", 7, "student", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	foreign, err := IssueToken("other", 7, "student", time.Hour, time.Now())
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"expired":      "Bearer " + expired,
		"bad secret":   "Bearer " + foreign,
		"garbage":      "Bearer not-a-jwt",
	}

	app := newProtectedApp("secret")
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestJWTProtectedSetsLocals(t *testing.T) {
	token, err := IssueToken("secret", 9, "Teacher", time.Hour, time.Now())
	require.NoError(t, err)

	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/", RequireRole("teacher"), func(c *fiber.Ctx) error {
		require.Equal(t, uint(9), c.Locals("user_id"))
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/login", RateLimit("login", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	require.Equal(t, []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests}, statuses)
}

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "abc-123", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDReplacesMalformedHeader(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "bad id; drop table")
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-42", resp.Header.Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", strings.Repeat("a", 65))
	resp, err = app.Test(req)
	require.NoError(t, err)
	generated := resp.Header.Get("X-Correlation-ID")
	require.Len(t, generated, 36)
}
