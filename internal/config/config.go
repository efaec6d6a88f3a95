package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Security   SecurityConfig   `mapstructure:"security"`
	Session    SessionConfig    `mapstructure:"session"`
	Context    ContextConfig    `mapstructure:"context"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ProvidersConfig struct {
	Timeout   time.Duration      `mapstructure:"timeout"`
	Endpoints []ProviderEndpoint `mapstructure:"endpoints"`
}

// ProviderEndpoint configures one backend provider. Endpoints are tried in
// the order they appear here, so the list doubles as the priority order.
type ProviderEndpoint struct {
	Name              string  `mapstructure:"name"`
	Type              string  `mapstructure:"type"`
	Enabled           bool    `mapstructure:"enabled"`
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type SecurityConfig struct {
	RateLimiting     RateLimitConfig      `mapstructure:"rate_limiting"`
	ContentFiltering ContentFilterConfig  `mapstructure:"content_filtering"`
	ACEGate          ACEGateConfig        `mapstructure:"ace_gate"`
	UserValidation   UserValidationConfig `mapstructure:"user_validation"`
}

type RateLimitConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	MaxRequestsPerMinute int  `mapstructure:"max_requests_per_minute"`
	MaxRequestsPerHour   int  `mapstructure:"max_requests_per_hour"`
}

type ContentFilterConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	BlockedWords     []string `mapstructure:"blocked_words"`
	TraumaIndicators []string `mapstructure:"trauma_indicators"`
	CrisisTriggers   []string `mapstructure:"crisis_triggers"`
}

// ACEGateConfig restricts chat access for high trauma-exposure scores on
// the listed applications.
type ACEGateConfig struct {
	Threshold    float64  `mapstructure:"threshold"`
	Applications []string `mapstructure:"applications"`
}

type UserValidationConfig struct {
	RequireAuth    bool `mapstructure:"require_auth"`
	AllowAnonymous bool `mapstructure:"allow_anonymous"`
}

type SessionConfig struct {
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
	CleanupInterval       time.Duration `mapstructure:"cleanup_interval"`
}

type ContextConfig struct {
	MaxHistory int           `mapstructure:"max_history"`
	Retention  time.Duration `mapstructure:"retention"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Directory       string   `mapstructure:"directory"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")

	// A missing config file is fine; defaults plus env cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEndpointsFromEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the built-in configuration used when no file or env is
// supplied. Tests construct stores straight from this.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// Defaults are static; if they stop unmarshalling it is a bug.
		panic(err)
	}
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("providers.timeout", 30*time.Second)

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.max_requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.max_requests_per_hour", 1000)
	v.SetDefault("security.content_filtering.enabled", true)
	v.SetDefault("security.content_filtering.blocked_words", []string{})
	v.SetDefault("security.content_filtering.trauma_indicators", []string{
		"suicide", "self-harm", "abuse", "violence",
		"trauma", "ptsd", "depression", "anxiety",
	})
	v.SetDefault("security.content_filtering.crisis_triggers", []string{
		"suicide", "self-harm", "abuse", "violence",
	})
	v.SetDefault("security.ace_gate.threshold", 4.0)
	v.SetDefault("security.ace_gate.applications", []string{"chatbot"})
	v.SetDefault("security.user_validation.require_auth", false)
	v.SetDefault("security.user_validation.allow_anonymous", true)

	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("session.max_concurrent_sessions", 5)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)

	v.SetDefault("context.max_history", 20)
	v.SetDefault("context.retention", 24*time.Hour)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.enabled", false)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.directory", "configs/i18n")
	v.SetDefault("i18n.languages", []string{})
}

// loadEndpointsFromEnv appends provider endpoints declared via environment
// variables, e.g. PROVIDER_ENDPOINTS=openai,anthropic with
// OPENAI_BASE_URL / OPENAI_API_KEY / OPENAI_MODEL per endpoint.
func loadEndpointsFromEnv(config *Config) {
	endpoints := os.Getenv("PROVIDER_ENDPOINTS")
	if endpoints == "" {
		return
	}

	for _, name := range strings.Split(endpoints, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		envPrefix := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))

		baseURL := os.Getenv(envPrefix + "_BASE_URL")
		apiKey := os.Getenv(envPrefix + "_API_KEY")
		if baseURL == "" || apiKey == "" {
			continue
		}

		providerType := os.Getenv(envPrefix + "_TYPE")
		if providerType == "" {
			providerType = "openai"
		}

		config.Providers.Endpoints = append(config.Providers.Endpoints, ProviderEndpoint{
			Name:    name,
			Type:    providerType,
			Enabled: true,
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   os.Getenv(envPrefix + "_MODEL"),
		})
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Session.MaxConcurrentSessions < 1 {
		return fmt.Errorf("session.max_concurrent_sessions must be at least 1")
	}
	if cfg.Context.MaxHistory < 1 {
		return fmt.Errorf("context.max_history must be at least 1")
	}
	for i, ep := range cfg.Providers.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("providers.endpoints[%d]: name is required", i)
		}
		switch ep.Type {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("providers.endpoints[%d]: unknown type %q", i, ep.Type)
		}
	}
	return nil
}
