package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkxlife/brain/internal/analytics"
	"github.com/thinkxlife/brain/internal/brain"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/i18n"
	"github.com/thinkxlife/brain/internal/middleware"
	"github.com/thinkxlife/brain/internal/models"
	"github.com/thinkxlife/brain/internal/provider"
	"github.com/thinkxlife/brain/internal/security"
	"github.com/thinkxlife/brain/internal/session"
	"github.com/thinkxlife/brain/internal/strategy"
)

type staticProvider struct {
	reply string
}

func (s *staticProvider) Name() string  { return "static" }
func (s *staticProvider) Enabled() bool { return true }

func (s *staticProvider) Process(ctx context.Context, req *models.EnhancedRequest) (*models.Response, error) {
	return &models.Response{
		Success:   true,
		Message:   s.reply,
		Metadata:  &models.ResponseMetadata{Provider: "static"},
		Timestamp: time.Now(),
	}, nil
}

func (s *staticProvider) HealthCheck(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Status: provider.HealthHealthy}
}

func (s *staticProvider) Close() error { return nil }

func newTestServer(t *testing.T, withProvider bool) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	registry := provider.NewRegistry(logger)
	if withProvider {
		require.NoError(t, registry.Register(&staticProvider{reply: "hello from the brain"}))
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	metrics := middleware.NewMetrics()
	engine := brain.New(
		cfg,
		security.NewGate(&cfg.Security, metrics, logger),
		session.NewStore(&cfg.Session, logger),
		session.NewContextStore(&cfg.Context, logger),
		registry,
		analytics.NewAggregator(),
		strategy.NewRegistry(),
		nil,
		localizer,
		metrics,
		logger,
	)

	srv := New(&cfg.Server, engine, logger)
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHandleProcess(t *testing.T) {
	ts := newTestServer(t, true)

	resp := postJSON(t, ts.URL+"/api/brain", map[string]interface{}{
		"application":  "chatbot",
		"message":      "hello",
		"user_context": map[string]interface{}{"user_id": "alice"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "hello from the brain", out.Message)
	assert.NotEmpty(t, out.Data["session_id"])
}

func TestHandleProcess_RejectionStaysHTTP200(t *testing.T) {
	ts := newTestServer(t, true)

	resp := postJSON(t, ts.URL+"/api/brain", map[string]interface{}{
		"application":  "chatbot",
		"user_context": map[string]interface{}{},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestHandleProcess_MalformedBody(t *testing.T) {
	ts := newTestServer(t, true)

	resp, err := http.Post(ts.URL+"/api/brain", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEndSession(t *testing.T) {
	ts := newTestServer(t, true)

	created := postJSON(t, ts.URL+"/api/brain", map[string]interface{}{
		"application":  "chatbot",
		"message":      "hello",
		"user_context": map[string]interface{}{"user_id": "alice"},
	})
	defer created.Body.Close()

	var out models.Response
	require.NoError(t, json.NewDecoder(created.Body).Decode(&out))
	sessionID := out.Data["session_id"].(string)

	resp, err := http.Post(ts.URL+"/api/brain/sessions/"+sessionID+"/end", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, true)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "healthy", report["overall"])
}

func TestHandleHealth_Unhealthy(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleAnalytics(t *testing.T) {
	ts := newTestServer(t, true)

	postJSON(t, ts.URL+"/api/brain", map[string]interface{}{
		"application":  "chatbot",
		"message":      "hello",
		"user_context": map[string]interface{}{"user_id": "alice"},
	}).Body.Close()

	resp, err := http.Get(ts.URL + "/analytics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap analytics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.ProviderCounts["static"])
}
