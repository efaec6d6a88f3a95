package models

import (
	"time"
)

// Application identifies the tenant vertical a request belongs to. The set
// is closed; unknown inbound values are routed as ApplicationGeneral.
type Application string

const (
	ApplicationHealingRooms   Application = "healing-rooms"
	ApplicationAIAwareness    Application = "ai-awareness"
	ApplicationChatbot        Application = "chatbot"
	ApplicationCompliance     Application = "compliance"
	ApplicationExteriorSpaces Application = "exterior-spaces"
	ApplicationGeneral        Application = "general"
)

// aiAwarenessAlias is the legacy route name still sent by older frontends.
const aiAwarenessAlias = "inside-our-ai"

// ParseApplication maps an inbound application string to its enum value.
// The second return reports whether the value was recognized; unrecognized
// values fall back to ApplicationGeneral.
func ParseApplication(s string) (Application, bool) {
	switch s {
	case string(ApplicationHealingRooms):
		return ApplicationHealingRooms, true
	case string(ApplicationAIAwareness), aiAwarenessAlias:
		return ApplicationAIAwareness, true
	case string(ApplicationChatbot):
		return ApplicationChatbot, true
	case string(ApplicationCompliance):
		return ApplicationCompliance, true
	case string(ApplicationExteriorSpaces):
		return ApplicationExteriorSpaces, true
	case string(ApplicationGeneral):
		return ApplicationGeneral, true
	}
	return ApplicationGeneral, false
}

// Applications lists every member of the closed set.
func Applications() []Application {
	return []Application{
		ApplicationHealingRooms,
		ApplicationAIAwareness,
		ApplicationChatbot,
		ApplicationCompliance,
		ApplicationExteriorSpaces,
		ApplicationGeneral,
	}
}

// Message roles in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Request is an inbound conversational request. It is immutable once built
// by the transport layer.
type Request struct {
	ID          string                 `json:"id,omitempty"`
	Application string                 `json:"application"`
	Message     string                 `json:"message"`
	UserContext map[string]interface{} `json:"user_context"`
	SessionID   string                 `json:"session_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp,omitempty"`
}

// ResponseMetadata carries provenance for a response.
type ResponseMetadata struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model,omitempty"`
	TokensUsed     int      `json:"tokens_used,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
	Application    string   `json:"application"`
	Sources        []string `json:"sources,omitempty"`
}

// Response is the structured result of processing a request. Success is
// always populated; a Response is never partial.
type Response struct {
	ID        string                 `json:"id,omitempty"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  *ResponseMetadata      `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
	SessionEnded   SessionState = "ended"
)

// Session is a bounded-lifetime conversational context tied to one user.
// It is owned by the session store and mutated only through it.
type Session struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Application  Application            `json:"application"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActivity time.Time              `json:"last_activity"`
	State        SessionState           `json:"state"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EnhancedRequest is the provider-facing request assembled by the router:
// the user message, the strategy-built system prompt as its own channel,
// truncated history, and the per-application flags.
type EnhancedRequest struct {
	Message         string                 `json:"message"`
	SystemPrompt    string                 `json:"system_prompt"`
	History         []Message              `json:"history,omitempty"`
	Application     Application            `json:"application"`
	UserContext     map[string]interface{} `json:"user_context,omitempty"`
	TraumaSafe      bool                   `json:"trauma_safe,omitempty"`
	Educational     bool                   `json:"educational,omitempty"`
	RegulatoryFocus bool                   `json:"regulatory_focus,omitempty"`
	Creative        bool                   `json:"creative,omitempty"`
}

// AceScore extracts the numeric trauma-exposure indicator from a user
// context map. JSON decoding yields float64; callers that build contexts in
// code may use int.
func AceScore(userContext map[string]interface{}) float64 {
	if userContext == nil {
		return 0
	}
	switch v := userContext["ace_score"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// UserID extracts the caller identity from a user context map, defaulting
// to "anonymous" the way the upstream API does.
func UserID(userContext map[string]interface{}) string {
	if userContext != nil {
		if v, ok := userContext["user_id"].(string); ok && v != "" {
			return v
		}
	}
	return "anonymous"
}
