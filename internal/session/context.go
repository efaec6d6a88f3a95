package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
)

// contextRecord is one session's bounded conversation history.
type contextRecord struct {
	messages     []models.Message
	lastAccessed time.Time
}

// ContextStore owns per-session conversation history, capped at maxHistory
// with the oldest turns trimmed first. Reads return copies so callers never
// observe later mutation.
type ContextStore struct {
	mu         sync.Mutex
	records    map[string]*contextRecord
	maxHistory int
	logger     *logrus.Logger

	now func() time.Time
}

// NewContextStore creates a context store from configuration.
func NewContextStore(cfg *config.ContextConfig, logger *logrus.Logger) *ContextStore {
	return &ContextStore{
		records:    make(map[string]*contextRecord),
		maxHistory: cfg.MaxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

// AddMessage appends a turn to a session's history, trimming the oldest
// entries once the cap is exceeded.
func (c *ContextStore) AddMessage(sessionID, role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[sessionID]
	if !ok {
		record = &contextRecord{}
		c.records[sessionID] = record
	}

	record.messages = append(record.messages, models.Message{
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	})

	if len(record.messages) > c.maxHistory {
		record.messages = append(record.messages[:0:0], record.messages[len(record.messages)-c.maxHistory:]...)
	}
	record.lastAccessed = c.now()
}

// History returns a copy of a session's ordered history and refreshes its
// last-accessed time. Unknown sessions return an empty slice.
func (c *ContextStore) History(sessionID string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[sessionID]
	if !ok {
		return nil
	}

	record.lastAccessed = c.now()
	return append(record.messages[:0:0], record.messages...)
}

// Remove drops a session's history outright.
func (c *ContextStore) Remove(sessionID string) {
	c.mu.Lock()
	delete(c.records, sessionID)
	c.mu.Unlock()
}

// Len reports the number of tracked session histories.
func (c *ContextStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Cleanup removes records not accessed within the retention window.
func (c *ContextStore) Cleanup(retention time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-retention)
	removed := 0
	for sessionID, record := range c.records {
		if record.lastAccessed.Before(cutoff) {
			delete(c.records, sessionID)
			removed++
		}
	}

	if removed > 0 {
		c.logger.WithField("count", removed).Info("Cleaned up expired contexts")
	}
	return removed
}
