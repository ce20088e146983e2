package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/api/handlers"
	"github.com/opsbridge/control-service/tests/mocks"
	"github.com/opsbridge/control-service/tests/testutils"
)

func TestHealth_AllHealthy(t *testing.T) {
	// Arrange
	mockCache := mocks.NewMockCacheClient()
	mockDocDB := mocks.NewMockDocDBClient()
	mockCache.On("Ping", mock.Anything).Return(nil)
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	router := testutils.SetupTestRouter()
	router.GET("/health", handlers.NewHealthHandler(mockCache, mockDocDB).Health)

	// Act
	w := testutils.PerformRequest(router, http.MethodGet, "/health", nil, nil)

	// Assert
	testutils.AssertStatusCode(t, http.StatusOK, w)
	var response handlers.HealthResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "healthy", response.Components["cache"])
	assert.Equal(t, "healthy", response.Components["docdb"])
	mockCache.AssertExpectations(t)
	mockDocDB.AssertExpectations(t)
}

func TestHealth_DocDBUnhealthy(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockDocDB := mocks.NewMockDocDBClient()
	mockCache.On("Ping", mock.Anything).Return(nil)
	mockDocDB.On("Ping", mock.Anything).Return(assert.AnError)

	router := testutils.SetupTestRouter()
	router.GET("/health", handlers.NewHealthHandler(mockCache, mockDocDB).Health)

	w := testutils.PerformRequest(router, http.MethodGet, "/health", nil, nil)

	testutils.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	var response handlers.HealthResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "unhealthy", response.Components["docdb"])
}

func TestHealth_CacheDisabled(t *testing.T) {
	mockDocDB := mocks.NewMockDocDBClient()
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	router := testutils.SetupTestRouter()
	router.GET("/health", handlers.NewHealthHandler(nil, mockDocDB).Health)

	w := testutils.PerformRequest(router, http.MethodGet, "/health", nil, nil)

	testutils.AssertStatusCode(t, http.StatusOK, w)
	var response handlers.HealthResponse
	testutils.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "disabled", response.Components["cache"])
}

func TestReady_CacheUnavailable(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockDocDB := mocks.NewMockDocDBClient()
	mockCache.On("Ping", mock.Anything).Return(assert.AnError)

	router := testutils.SetupTestRouter()
	router.GET("/ready", handlers.NewHealthHandler(mockCache, mockDocDB).Ready)

	w := testutils.PerformRequest(router, http.MethodGet, "/ready", nil, nil)

	testutils.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.Contains(t, w.Body.String(), "cache unavailable")
	mockDocDB.AssertNotCalled(t, "Ping", mock.Anything)
}

func TestLive(t *testing.T) {
	router := testutils.SetupTestRouter()
	router.GET("/live", handlers.NewHealthHandler(nil, mocks.NewMockDocDBClient()).Live)

	w := testutils.PerformRequest(router, http.MethodGet, "/live", nil, nil)

	testutils.AssertStatusCode(t, http.StatusOK, w)
}
