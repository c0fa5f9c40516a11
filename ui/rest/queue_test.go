package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propertydesk/groupqueue/pkg/utils"
	"github.com/propertydesk/groupqueue/queue/repository"
	"github.com/propertydesk/groupqueue/queue/usecase"
	"github.com/propertydesk/groupqueue/ui/rest/middleware"
)

func newQueueApp(t *testing.T) (*fiber.App, *usecase.PostQueueService) {
	t.Helper()
	repo := repository.NewMemoryQueueRepository()
	service := usecase.NewPostQueueService(repo, nil)
	dispatcher := usecase.NewDispatcher(repo, nil, nil, usecase.DispatcherConfig{DryRun: true})

	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestQueue(app, service, dispatcher)
	return app, service
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, utils.ResponseData) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var data utils.ResponseData
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.NoError(t, json.Unmarshal(raw, &data))
	return resp, data
}

func TestSubmitEndpointCreatesItem(t *testing.T) {
	app, _ := newQueueApp(t)

	resp, data := doJSON(t, app, http.MethodPost, "/queue/items", fiber.Map{
		"content": "2BHK Baner, 45L, ready possession",
		"targets": []string{"pune-flats"},
		"kind":    "listing",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "CREATED", data.Code)

	result, ok := data.Results.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, result["id"])
	assert.Equal(t, "queued", result["status"])
}

func TestSubmitEndpointRejectsBlankContent(t *testing.T) {
	app, _ := newQueueApp(t)

	resp, data := doJSON(t, app, http.MethodPost, "/queue/items", fiber.Map{
		"content": "   ",
		"targets": []string{"pune-flats"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", data.Code)
}

func TestListEndpointRejectsUnknownStatus(t *testing.T) {
	app, _ := newQueueApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/queue/items?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetEndpointReturns404ForUnknownID(t *testing.T) {
	app, _ := newQueueApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/queue/items/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaryEndpoint(t *testing.T) {
	app, _ := newQueueApp(t)

	_, _ = doJSON(t, app, http.MethodPost, "/queue/items", fiber.Map{
		"content": "3BHK Wakad",
		"targets": []string{"pune-flats"},
	})

	resp, data := doJSON(t, app, http.MethodGet, "/queue/summary", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result, ok := data.Results.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, result["total"])
}

func TestDispatchEndpointDryRun(t *testing.T) {
	app, _ := newQueueApp(t)

	_, _ = doJSON(t, app, http.MethodPost, "/queue/items", fiber.Map{
		"content": "open house saturday",
		"targets": []string{"g1"},
	})

	resp, data := doJSON(t, app, http.MethodPost, "/queue/dispatch", fiber.Map{"dry_run": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result, ok := data.Results.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["dry_run"])
	assert.EqualValues(t, 1, result["reserved"])
}
