package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
)

// Store owns all session records. Sessions are created on demand, refreshed
// on access, and evicted lazily: an expired session is deleted on the next
// lookup, and per-user overflow ends the least recently active sessions.
// Critical sections are short map mutations with no I/O, so a store-wide
// mutex keeps same-session operations serialized without blocking unrelated
// sessions in any observable way.
type Store struct {
	mu            sync.Mutex
	sessions      map[string]*models.Session
	userSessions  map[string][]string
	timeout       time.Duration
	maxConcurrent int
	logger        *logrus.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a session store from configuration.
func NewStore(cfg *config.SessionConfig, logger *logrus.Logger) *Store {
	return &Store{
		sessions:      make(map[string]*models.Session),
		userSessions:  make(map[string][]string),
		timeout:       cfg.Timeout,
		maxConcurrent: cfg.MaxConcurrentSessions,
		logger:        logger,
		now:           time.Now,
	}
}

// Create registers a new active session for a user and returns its id, then
// runs per-user eviction so the user never exceeds the concurrency cap.
func (s *Store) Create(userID string, application models.Application) string {
	return s.CreateWithID(uuid.NewString(), userID, application)
}

// CreateWithID registers a session under a caller-supplied id. Used when the
// persistence collaborator hands back a durable session id.
func (s *Store) CreateWithID(sessionID, userID string, application models.Application) string {
	now := s.now()
	session := &models.Session{
		ID:           sessionID,
		UserID:       userID,
		Application:  application,
		CreatedAt:    now,
		LastActivity: now,
		State:        models.SessionActive,
		Metadata:     make(map[string]interface{}),
	}

	s.mu.Lock()
	s.sessions[sessionID] = session
	s.userSessions[userID] = append(s.userSessions[userID], sessionID)
	s.evictLocked(userID)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"session_id":  sessionID,
		"user_id":     userID,
		"application": application,
	}).Info("Created session")

	return sessionID
}

// Get returns a copy of a valid session, refreshing its last activity. An
// expired or ended session is removed lazily and nil is returned.
func (s *Store) Get(sessionID string) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	if !s.validLocked(session) {
		s.removeLocked(sessionID)
		return nil
	}

	session.LastActivity = s.now()
	copied := *session
	return &copied
}

// End marks a session ended. The record is removed on the next access.
func (s *Store) End(sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		session.State = models.SessionEnded
	}
	s.mu.Unlock()

	if ok {
		s.logger.WithField("session_id", sessionID).Info("Ended session")
	}
}

// Touch updates metadata on a live session.
func (s *Store) Touch(sessionID string, metadata map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || !s.validLocked(session) {
		return
	}
	for k, v := range metadata {
		session.Metadata[k] = v
	}
	session.LastActivity = s.now()
}

// ActiveCount reports how many valid sessions a user holds.
func (s *Store) ActiveCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sessionID := range s.userSessions[userID] {
		if session, ok := s.sessions[sessionID]; ok && s.validLocked(session) {
			count++
		}
	}
	return count
}

// Len reports the total number of stored session records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup sweeps every session and removes the invalid ones. Must be
// scheduled by the host; normal request processing only evicts lazily.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for sessionID, session := range s.sessions {
		if !s.validLocked(session) {
			expired = append(expired, sessionID)
		}
	}

	for _, sessionID := range expired {
		s.removeLocked(sessionID)
	}

	if len(expired) > 0 {
		s.logger.WithField("count", len(expired)).Info("Cleaned up expired sessions")
	}
	return len(expired)
}

// validLocked reports whether a session is active and within the timeout.
func (s *Store) validLocked(session *models.Session) bool {
	if session.State != models.SessionActive {
		return false
	}
	return s.now().Sub(session.LastActivity) <= s.timeout
}

// evictLocked enforces the per-user concurrency cap, keeping the most
// recently active sessions and ending the rest. Invalid sessions found along
// the way are removed.
func (s *Store) evictLocked(userID string) {
	ids := s.userSessions[userID]
	active := ids[:0:0]

	for _, sessionID := range ids {
		session, ok := s.sessions[sessionID]
		if !ok {
			continue
		}
		if s.validLocked(session) {
			active = append(active, sessionID)
		} else {
			delete(s.sessions, sessionID)
		}
	}

	if len(active) > s.maxConcurrent {
		sort.Slice(active, func(i, j int) bool {
			return s.sessions[active[i]].LastActivity.After(s.sessions[active[j]].LastActivity)
		})

		for _, sessionID := range active[s.maxConcurrent:] {
			s.sessions[sessionID].State = models.SessionEnded
			s.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"user_id":    userID,
			}).Info("Evicted session over concurrency limit")
		}
		active = active[:s.maxConcurrent]
	}

	s.userSessions[userID] = active
}

// removeLocked deletes a session record and its user index entry.
func (s *Store) removeLocked(sessionID string) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)

	ids := s.userSessions[session.UserID]
	kept := ids[:0:0]
	for _, id := range ids {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(s.userSessions, session.UserID)
	} else {
		s.userSessions[session.UserID] = kept
	}
}
