package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
	"golang.org/x/time/rate"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic messages API. The system prompt
// is a top-level field there, so it never enters the message list.
type AnthropicProvider struct {
	name       string
	enabled    bool
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewAnthropicProvider validates the endpoint configuration and constructs
// the provider.
func NewAnthropicProvider(cfg *config.ProviderEndpoint, logger *logrus.Logger) (*AnthropicProvider, error) {
	// Credentials are only required once the endpoint is switched on; a
	// disabled placeholder in the config file must not fail construction.
	if cfg.Enabled && cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api_key is required", cfg.Name)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-sonnet-20240229"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &AnthropicProvider{
		name:       cfg.Name,
		enabled:    cfg.Enabled,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return p.name }

// Enabled implements Provider.
func (p *AnthropicProvider) Enabled() bool { return p.enabled }

// Process implements Provider.
func (p *AnthropicProvider) Process(ctx context.Context, req *models.EnhancedRequest) (*models.Response, error) {
	start := time.Now()

	if !p.enabled {
		return nil, fmt.Errorf("provider %s is disabled", p.name)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate wait: %w", err)
		}
	}

	// The messages API only accepts user/assistant roles in the list.
	messages := make([]map[string]string, 0, historyLimit+1)
	for _, msg := range truncateHistory(req.History) {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}
	messages = append(messages, map[string]string{
		"role":    models.RoleUser,
		"content": req.Message,
	})

	reqBody := map[string]interface{}{
		"model":      p.model,
		"max_tokens": p.maxTokens,
		"messages":   messages,
	}
	if req.SystemPrompt != "" {
		reqBody["system"] = req.SystemPrompt
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	p.logger.WithFields(logrus.Fields{
		"provider":    p.name,
		"model":       p.model,
		"application": req.Application,
	}).Debug("Sending provider request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewBrainError(models.ErrProvider, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.WithFields(logrus.Fields{
			"provider": p.name,
			"status":   resp.StatusCode,
			"body":     string(body),
		}).Error("Provider request failed")
		return nil, models.NewBrainError(models.ErrProvider,
			fmt.Sprintf("provider request failed with status %d", resp.StatusCode), nil)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return nil, models.NewBrainError(models.ErrProvider, result.Error.Message, nil)
	}
	if len(result.Content) == 0 || result.Content[0].Text == "" {
		return nil, models.NewBrainError(models.ErrProvider, "empty response from provider", nil)
	}

	return &models.Response{
		Success: true,
		Message: result.Content[0].Text,
		Metadata: &models.ResponseMetadata{
			Provider:       p.name,
			Model:          p.model,
			TokensUsed:     result.Usage.InputTokens + result.Usage.OutputTokens,
			ProcessingTime: time.Since(start).Seconds(),
			Application:    string(req.Application),
		},
		Timestamp: time.Now(),
	}, nil
}

// HealthCheck implements Provider.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) HealthStatus {
	if !p.enabled {
		return HealthStatus{Status: HealthDisabled, Detail: "provider is disabled"}
	}

	resp, err := p.Process(ctx, &models.EnhancedRequest{
		Message:     "Health check",
		Application: models.ApplicationGeneral,
	})
	if err != nil {
		return HealthStatus{Status: HealthUnhealthy, Detail: err.Error()}
	}
	if resp.Message == "" {
		return HealthStatus{Status: HealthDegraded, Detail: "provider responding with empty output"}
	}
	return HealthStatus{Status: HealthHealthy, Detail: "provider is operational"}
}

// Close implements Provider.
func (p *AnthropicProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
