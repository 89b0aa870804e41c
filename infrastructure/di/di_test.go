package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindmap/infrastructure/config"
)

func TestInitializeContainer_MemoryStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "error"

	container, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.Same(t, cfg, container.Config)
	assert.NotNil(t, container.Dispatcher)
	assert.NotNil(t, container.Hub)
	assert.Equal(t, 0, container.Hub.Count())

	handler := container.Router.Setup()
	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/mindmaps", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInitializeContainer_UnknownStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.LogLevel = "error"
	cfg.DocumentStore = "cassandra"

	_, _, err := InitializeContainer(context.Background(), cfg)
	assert.Error(t, err)
}
