package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeProvider is a scriptable in-memory provider.
type fakeProvider struct {
	name    string
	enabled bool
	health  HealthStatus
	reply   string
	err     error
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Enabled() bool { return f.enabled }

func (f *fakeProvider) Process(ctx context.Context, req *models.EnhancedRequest) (*models.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Response{
		Success: true,
		Message: f.reply,
		Metadata: &models.ResponseMetadata{
			Provider: f.name,
		},
	}, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) HealthStatus { return f.health }
func (f *fakeProvider) Close() error                                 { return nil }

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry(testLogger())

	require.NoError(t, registry.Register(&fakeProvider{name: "a", enabled: true}))
	assert.Error(t, registry.Register(&fakeProvider{name: "a", enabled: true}))
}

func TestRegistry_SelectPriorityOrder(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(&fakeProvider{name: "primary", enabled: false}))
	require.NoError(t, registry.Register(&fakeProvider{name: "secondary", enabled: true}))
	require.NoError(t, registry.Register(&fakeProvider{name: "tertiary", enabled: true}))

	p, err := registry.Select(models.ApplicationChatbot)
	require.NoError(t, err)
	assert.Equal(t, "secondary", p.Name(), "disabled providers are skipped in priority order")
}

func TestRegistry_SelectNoneAvailable(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(&fakeProvider{name: "off", enabled: false}))

	_, err := registry.Select(models.ApplicationGeneral)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestRegistry_HealthAllWorstOf(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(&fakeProvider{
		name: "good", enabled: true, health: HealthStatus{Status: HealthHealthy},
	}))
	require.NoError(t, registry.Register(&fakeProvider{
		name: "shaky", enabled: true, health: HealthStatus{Status: HealthDegraded},
	}))
	require.NoError(t, registry.Register(&fakeProvider{
		name: "off", enabled: false, health: HealthStatus{Status: HealthDisabled},
	}))

	overall, reports := registry.HealthAll(context.Background())
	assert.Equal(t, HealthDegraded, overall, "disabled never degrades the aggregate; degraded does")
	assert.Len(t, reports, 3)
	assert.Equal(t, HealthDisabled, reports["off"].Status)
}

func TestRegistry_HealthAllNoneEnabled(t *testing.T) {
	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(&fakeProvider{
		name: "off", enabled: false, health: HealthStatus{Status: HealthDisabled},
	}))

	overall, _ := registry.HealthAll(context.Background())
	assert.Equal(t, HealthUnhealthy, overall)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.ProvidersConfig{
		Endpoints: []config.ProviderEndpoint{
			{Name: "main", Type: "openai", Enabled: true, BaseURL: "https://api.openai.com/v1", APIKey: "key"},
			{Name: "broken", Type: "openai", Enabled: true, BaseURL: "https://api.openai.com/v1"},
			{Name: "weird", Type: "carrier-pigeon"},
		},
	}

	registry, failures := NewRegistryFromConfig(cfg, testLogger())

	assert.Equal(t, []string{"main"}, registry.Names())
	assert.Contains(t, failures, "broken")
	assert.Contains(t, failures, "weird")
}

func TestTruncateHistory(t *testing.T) {
	history := make([]models.Message, 15)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}
	}

	truncated := truncateHistory(history)
	require.Len(t, truncated, historyLimit)
	assert.Equal(t, "m5", truncated[0].Content, "oldest turns are dropped")
	assert.Equal(t, "m14", truncated[9].Content)

	short := history[:3]
	assert.Equal(t, short, truncateHistory(short))
}

func TestOpenAIProvider_Process(t *testing.T) {
	var captured struct {
		Model    string              `json:"model"`
		Messages []map[string]string `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "hello there"}}],
			"usage": {"total_tokens": 42}
		}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&config.ProviderEndpoint{
		Name:    "test-openai",
		Type:    "openai",
		Enabled: true,
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, testLogger())
	require.NoError(t, err)

	history := make([]models.Message, 12)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}
	}

	resp, err := p.Process(context.Background(), &models.EnhancedRequest{
		Message:      "hi",
		SystemPrompt: "be nice",
		History:      history,
		Application:  models.ApplicationChatbot,
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "hello there", resp.Message)
	assert.Equal(t, 42, resp.Metadata.TokensUsed)
	assert.Equal(t, "test-openai", resp.Metadata.Provider)

	// system prompt + truncated history + user message
	require.Len(t, captured.Messages, 1+historyLimit+1)
	assert.Equal(t, models.RoleSystem, captured.Messages[0]["role"])
	assert.Equal(t, "m2", captured.Messages[1]["content"], "history is truncated to the trailing window")
	assert.Equal(t, "hi", captured.Messages[len(captured.Messages)-1]["content"])
}

func TestOpenAIProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&config.ProviderEndpoint{
		Name: "test-openai", Type: "openai", Enabled: true, BaseURL: srv.URL, APIKey: "k",
	}, testLogger())
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &models.EnhancedRequest{Message: "hi"})
	require.Error(t, err)

	var brainErr *models.BrainError
	require.ErrorAs(t, err, &brainErr, "upstream failures carry the typed provider error")
	assert.Equal(t, models.ErrProvider, brainErr.Kind)
}

func TestOpenAIProvider_DisabledRefusesProcess(t *testing.T) {
	p, err := NewOpenAIProvider(&config.ProviderEndpoint{
		Name: "off", Type: "openai", BaseURL: "https://example.com", APIKey: "k",
	}, testLogger())
	require.NoError(t, err)

	_, err = p.Process(context.Background(), &models.EnhancedRequest{Message: "hi"})
	assert.Error(t, err)
	assert.Equal(t, HealthDisabled, p.HealthCheck(context.Background()).Status)
}

func TestDisabledEndpointsConstructWithoutCredentials(t *testing.T) {
	// A shipped config may list endpoints that are switched off and carry no
	// key; those must still construct as disabled placeholders.
	openai, err := NewOpenAIProvider(&config.ProviderEndpoint{
		Name: "openai", Type: "openai",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, HealthDisabled, openai.HealthCheck(context.Background()).Status)

	anthropic, err := NewAnthropicProvider(&config.ProviderEndpoint{
		Name: "anthropic", Type: "anthropic",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, HealthDisabled, anthropic.HealthCheck(context.Background()).Status)

	registry := NewRegistry(testLogger())
	require.NoError(t, registry.Register(openai))
	require.NoError(t, registry.Register(anthropic))

	_, err = registry.Select(models.ApplicationGeneral)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestAnthropicProvider_Process(t *testing.T) {
	var captured struct {
		System   string              `json:"system"`
		Messages []map[string]string `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"content": [{"type": "text", "text": "certainly"}],
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(&config.ProviderEndpoint{
		Name:    "test-anthropic",
		Type:    "anthropic",
		Enabled: true,
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, testLogger())
	require.NoError(t, err)

	resp, err := p.Process(context.Background(), &models.EnhancedRequest{
		Message:      "hi",
		SystemPrompt: "be nice",
		History: []models.Message{
			{Role: models.RoleUser, Content: "earlier"},
			{Role: models.RoleSystem, Content: "should be dropped"},
			{Role: models.RoleAssistant, Content: "reply"},
		},
		Application: models.ApplicationChatbot,
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "certainly", resp.Message)
	assert.Equal(t, 15, resp.Metadata.TokensUsed)

	assert.Equal(t, "be nice", captured.System, "system prompt rides as a top-level field")
	require.Len(t, captured.Messages, 3, "non-conversational roles are filtered from history")
	assert.Equal(t, "earlier", captured.Messages[0]["content"])
	assert.Equal(t, "reply", captured.Messages[1]["content"])
	assert.Equal(t, "hi", captured.Messages[2]["content"])
}
