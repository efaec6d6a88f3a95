package storage

import (
	"context"
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

func newMemoryRepo() *MemoryRepository {
	cfg := config.Default()
	return NewMemoryRepository(&cfg.Storage.Memory, testLogger())
}

func TestMemoryRepository_GetOrCreateSessionIsStable(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	first, err := repo.GetOrCreateSession(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := repo.GetOrCreateSession(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second, "the same user maps to the same session")

	other, err := repo.GetOrCreateSession(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestMemoryRepository_SaveAndReadHistory(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	history, err := repo.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, repo.SaveMessage(ctx, "s1", models.RoleUser, "hello"))
	require.NoError(t, repo.SaveMessage(ctx, "s1", models.RoleAssistant, "hi there"))

	history, err = repo.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi there", history[1].Content)
}

func TestMemoryRepository_HistoryIsCopy(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.SaveMessage(ctx, "s1", models.RoleUser, "hello"))

	history, err := repo.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	history[0].Content = "mutated"

	fresh, err := repo.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", fresh[0].Content)
}

func TestMemoryRepository_EndSessionDropsHistory(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.SaveMessage(ctx, "s1", models.RoleUser, "hello"))
	require.NoError(t, repo.EndSession(ctx, "s1"))

	history, err := repo.SessionHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestNewManager_MemoryBackend(t *testing.T) {
	cfg := config.Default()
	manager, err := NewManager(&cfg.Storage, testLogger())
	require.NoError(t, err)
	assert.Nil(t, manager.GetRedisClient())

	id, err := manager.GetOrCreateSession(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestNewManager_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "etched-stone"

	_, err := NewManager(&cfg.Storage, testLogger())
	assert.Error(t, err)
}

func TestNewManager_RedisDegradesToMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "redis"
	cfg.Storage.Redis.Addr = "127.0.0.1:1" // nothing listens here

	manager, err := NewManager(&cfg.Storage, testLogger())
	require.NoError(t, err, "an unreachable redis must not prevent startup")
	assert.Nil(t, manager.GetRedisClient())

	id, err := manager.GetOrCreateSession(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
