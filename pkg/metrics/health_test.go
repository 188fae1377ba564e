package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(critical ...string) {
	healthChecker = newHealthChecker()
	SetCriticalComponents(critical...)
}

func TestGetHealth(t *testing.T) {
	resetHealth("store")
	SetVersion("0.4.0")

	UpdateComponent("store", true, "")
	UpdateComponent("objectstore", true, "")
	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "0.4.0", health.Version)

	UpdateComponent("objectstore", false, "bucket missing")
	health = GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: bucket missing", health.Components["objectstore"])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		expected string
		message  string
	}{
		{
			name: "all critical components ready",
			setup: func() {
				UpdateComponent("store", true, "")
				UpdateComponent("docker", true, "")
			},
			expected: "ready",
		},
		{
			name: "critical component missing",
			setup: func() {
				UpdateComponent("store", true, "")
			},
			expected: "not_ready",
			message:  "waiting for docker initialization",
		},
		{
			name: "critical component unhealthy",
			setup: func() {
				UpdateComponent("store", true, "")
				UpdateComponent("docker", false, "daemon unreachable")
			},
			expected: "not_ready",
			message:  "waiting for docker",
		},
		{
			name: "non-critical component ignored",
			setup: func() {
				UpdateComponent("store", true, "")
				UpdateComponent("docker", true, "")
				UpdateComponent("objectstore", false, "timeout")
			},
			expected: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("store", "docker")
			tt.setup()

			readiness := GetReadiness()
			assert.Equal(t, tt.expected, readiness.Status)
			assert.Equal(t, tt.message, readiness.Message)
		})
	}
}

func TestHealthHandlers(t *testing.T) {
	resetHealth("store")
	UpdateComponent("store", false, "closed")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	UpdateComponent("store", true, "")

	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ready", body.Components["store"])
}
