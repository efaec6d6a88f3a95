package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
)

// Repository is the persistence collaborator for durable session data. The
// engine treats it as best-effort: failures are logged and processing
// continues in memory.
type Repository interface {
	GetOrCreateSession(ctx context.Context, userID string) (string, error)
	SessionHistory(ctx context.Context, sessionID string) ([]models.Message, error)
	SaveMessage(ctx context.Context, sessionID, role, content string) error
	EndSession(ctx context.Context, sessionID string) error
}

// Manager selects and wraps a repository backend. When the configured Redis
// backend is unreachable it degrades to the in-memory backend with a
// warning instead of refusing to start.
type Manager struct {
	repository  Repository
	logger      *logrus.Logger
	redisClient *redis.Client
}

// NewManager creates a repository manager from configuration.
func NewManager(cfg *config.StorageConfig, logger *logrus.Logger) (*Manager, error) {
	manager := &Manager{logger: logger}

	switch cfg.Type {
	case "redis":
		redisRepo, err := NewRedisRepository(&cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, degrading to in-memory repository")
			manager.repository = NewMemoryRepository(&cfg.Memory, logger)
		} else {
			manager.repository = redisRepo
			manager.redisClient = redisRepo.client
		}
	case "memory":
		manager.repository = NewMemoryRepository(&cfg.Memory, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	return manager, nil
}

func (m *Manager) GetOrCreateSession(ctx context.Context, userID string) (string, error) {
	return m.repository.GetOrCreateSession(ctx, userID)
}

func (m *Manager) SessionHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	return m.repository.SessionHistory(ctx, sessionID)
}

func (m *Manager) SaveMessage(ctx context.Context, sessionID, role, content string) error {
	return m.repository.SaveMessage(ctx, sessionID, role, content)
}

func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	return m.repository.EndSession(ctx, sessionID)
}

// GetRedisClient returns the Redis client if the Redis backend is active.
func (m *Manager) GetRedisClient() *redis.Client {
	return m.redisClient
}

// RedisRepository persists sessions and history in Redis.
type RedisRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisRepository(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRepository{
		client: client,
		logger: logger,
	}, nil
}

func (r *RedisRepository) GetOrCreateSession(ctx context.Context, userID string) (string, error) {
	key := fmt.Sprintf("user_session:%s", userID)
	sessionID, err := r.client.Get(ctx, key).Result()
	if err == nil && sessionID != "" {
		return sessionID, nil
	}
	if err != nil && err != redis.Nil {
		return "", err
	}

	sessionID = uuid.NewString()
	if err := r.client.Set(ctx, key, sessionID, 24*time.Hour).Err(); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (r *RedisRepository) SessionHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	key := fmt.Sprintf("history:%s", sessionID)
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *RedisRepository) SaveMessage(ctx context.Context, sessionID, role, content string) error {
	messages, err := r.SessionHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	messages = append(messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})

	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("history:%s", sessionID)
	return r.client.Set(ctx, key, data, 24*time.Hour).Err()
}

func (r *RedisRepository) EndSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, fmt.Sprintf("history:%s", sessionID)).Err()
}

// MemoryRepository keeps sessions and history in an in-process cache with
// TTL-based expiry.
type MemoryRepository struct {
	userSessions *cache.Cache
	histories    *cache.Cache
	logger       *logrus.Logger
}

func NewMemoryRepository(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryRepository {
	return &MemoryRepository{
		userSessions: cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		histories:    cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		logger:       logger,
	}
}

func (m *MemoryRepository) GetOrCreateSession(ctx context.Context, userID string) (string, error) {
	key := fmt.Sprintf("user_session:%s", userID)
	if val, found := m.userSessions.Get(key); found {
		return val.(string), nil
	}

	sessionID := uuid.NewString()
	m.userSessions.SetDefault(key, sessionID)
	return sessionID, nil
}

func (m *MemoryRepository) SessionHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	key := fmt.Sprintf("history:%s", sessionID)
	if val, found := m.histories.Get(key); found {
		messages := val.([]models.Message)
		return append(messages[:0:0], messages...), nil
	}
	return nil, nil
}

func (m *MemoryRepository) SaveMessage(ctx context.Context, sessionID, role, content string) error {
	key := fmt.Sprintf("history:%s", sessionID)

	var messages []models.Message
	if val, found := m.histories.Get(key); found {
		messages = val.([]models.Message)
	}

	messages = append(messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	m.histories.SetDefault(key, messages)
	return nil
}

func (m *MemoryRepository) EndSession(ctx context.Context, sessionID string) error {
	m.histories.Delete(fmt.Sprintf("history:%s", sessionID))
	return nil
}
