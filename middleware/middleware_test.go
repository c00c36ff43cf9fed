package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jpjportal_go/config"
	"jpjportal_go/database"
	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuth(t *testing.T) (*models.User, *models.User) {
	t.Helper()
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour}
	database.DB = dbtest.New(t)

	student := &models.User{Username: "aina", Password: "x", Email: "aina@example.com", Role: models.RoleStudent, Status: "active"}
	admin := &models.User{Username: "officer", Password: "x", Email: "officer@example.com", Role: models.RoleAdmin, Status: "active"}
	require.NoError(t, database.DB.Create(student).Error)
	require.NoError(t, database.DB.Create(admin).Error)
	return student, admin
}

func protectedApp() *fiber.App {
	app := fiber.New()
	ok := func(c *fiber.Ctx) error {
		user, err := GetCurrentUser(c)
		if err != nil {
			return err
		}
		return c.SendString(user.Username)
	}
	app.Get("/api/me", JWTMiddleware(), ok)
	app.Get("/portal/me", JWTMiddleware(), ok)
	app.Get("/api/admin", JWTMiddleware(), RequireAdmin(), ok)
	return app
}

func TestJWTMiddleware(t *testing.T) {
	student, _ := setupAuth(t)
	app := protectedApp()

	token, expires, err := GenerateToken(student)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "aina", string(body))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token on api", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/me", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotEmpty(t, body["error"])
	})

	t.Run("browser is sent to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/portal/me", nil)
		req.Header.Set("Accept", "text/html")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("tampered token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRequireAdmin(t *testing.T) {
	student, admin := setupAuth(t)
	app := protectedApp()

	for _, tc := range []struct {
		user *models.User
		want int
	}{
		{student, http.StatusForbidden},
		{admin, http.StatusOK},
	} {
		token, _, err := GenerateToken(tc.user)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, tc.user.Username)
	}
}

func TestFlashRoundTrip(t *testing.T) {
	app := fiber.New()
	app.Get("/set", func(c *fiber.Ctx) error {
		SetFlash(c, FlashSuccess, "Booking confirmed")
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/take", func(c *fiber.Ctx) error {
		return c.JSON(TakeFlashes(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/set", nil))
	require.NoError(t, err)
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	take := func() []Flash {
		req := httptest.NewRequest(http.MethodGet, "/take", nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		var out []Flash
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := take()
	require.Len(t, first, 1)
	assert.Equal(t, Flash{Kind: FlashSuccess, Message: "Booking confirmed"}, first[0])
	assert.Empty(t, take())
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{fiber.MethodPost, "/portal/bookings", "CREATE"},
		{fiber.MethodGet, "/portal/bookings/4/cancel", "CANCEL"},
		{fiber.MethodPut, "/api/admin/questions/2", "UPDATE"},
		{fiber.MethodDelete, "/api/admin/materials/2", "DELETE"},
		{fiber.MethodGet, "/portal/bookings", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ActionFor(tc.method, tc.path), tc.path)
	}
	assert.Equal(t, "bookings", resourceFor("/portal/bookings/4/cancel"))
}
