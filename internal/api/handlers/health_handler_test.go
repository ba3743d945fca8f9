package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *fiber.App {
	app := fiber.New()
	now := func() time.Time { return time.Date(2026, 2, 14, 12, 30, 0, 0, time.UTC) }
	NewHealthHandler("scheduler", now).Register(app)
	return app
}

func TestAlive(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bot is alive!", string(body))
}

func TestHealthz(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		OK   bool   `json:"ok"`
		Time string `json:"time"`
		Mode string `json:"mode"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.OK)
	assert.Equal(t, "2026-02-14T12:30:00Z", status.Time)
	assert.Equal(t, "scheduler", status.Mode)
}

func TestUnknownRoute(t *testing.T) {
	resp, err := newTestApp().Test(httptest.NewRequest("POST", "/api/posts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
