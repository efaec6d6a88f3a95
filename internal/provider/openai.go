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

// OpenAIProvider talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIProvider struct {
	name        string
	enabled     bool
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

// NewOpenAIProvider validates the endpoint configuration and constructs the
// provider. A disabled endpoint constructs fine; it reports disabled health
// and is skipped by selection.
func NewOpenAIProvider(cfg *config.ProviderEndpoint, logger *logrus.Logger) (*OpenAIProvider, error) {
	// Credentials are only required once the endpoint is switched on; a
	// disabled placeholder in the config file must not fail construction.
	if cfg.Enabled {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: base_url is required", cfg.Name)
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: api_key is required", cfg.Name)
		}
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIProvider{
		name:        cfg.Name,
		enabled:     cfg.Enabled,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Enabled implements Provider.
func (p *OpenAIProvider) Enabled() bool { return p.enabled }

// Process implements Provider by sending the enhanced request downstream.
// History is truncated to the trailing window and the system prompt rides
// as a dedicated system message, never merged into history.
func (p *OpenAIProvider) Process(ctx context.Context, req *models.EnhancedRequest) (*models.Response, error) {
	start := time.Now()

	if !p.enabled {
		return nil, fmt.Errorf("provider %s is disabled", p.name)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate wait: %w", err)
		}
	}

	messages := make([]map[string]string, 0, historyLimit+2)
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    models.RoleSystem,
			"content": req.SystemPrompt,
		})
	}
	for _, msg := range truncateHistory(req.History) {
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
		"model":       p.model,
		"messages":    messages,
		"max_tokens":  p.maxTokens,
		"temperature": p.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
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
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return nil, models.NewBrainError(models.ErrProvider, "empty response from provider", nil)
	}

	return &models.Response{
		Success: true,
		Message: result.Choices[0].Message.Content,
		Metadata: &models.ResponseMetadata{
			Provider:       p.name,
			Model:          p.model,
			TokensUsed:     result.Usage.TotalTokens,
			ProcessingTime: time.Since(start).Seconds(),
			Application:    string(req.Application),
		},
		Timestamp: time.Now(),
	}, nil
}

// HealthCheck implements Provider with a minimal completion round trip.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) HealthStatus {
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

// Close implements Provider. The shared HTTP client holds no resources
// beyond idle connections.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
