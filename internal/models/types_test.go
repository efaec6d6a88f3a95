package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseApplication(t *testing.T) {
	tests := []struct {
		in    string
		want  Application
		known bool
	}{
		{"healing-rooms", ApplicationHealingRooms, true},
		{"ai-awareness", ApplicationAIAwareness, true},
		{"inside-our-ai", ApplicationAIAwareness, true},
		{"chatbot", ApplicationChatbot, true},
		{"compliance", ApplicationCompliance, true},
		{"exterior-spaces", ApplicationExteriorSpaces, true},
		{"general", ApplicationGeneral, true},
		{"", ApplicationGeneral, false},
		{"something-else", ApplicationGeneral, false},
		{"Chatbot", ApplicationGeneral, false},
	}

	for _, tt := range tests {
		got, known := ParseApplication(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, tt.known, known, "input %q", tt.in)
	}
}

func TestAceScore(t *testing.T) {
	assert.Zero(t, AceScore(nil))
	assert.Zero(t, AceScore(map[string]interface{}{}))
	assert.Zero(t, AceScore(map[string]interface{}{"ace_score": "6"}), "strings are not coerced")

	assert.Equal(t, 6.0, AceScore(map[string]interface{}{"ace_score": 6.0}))
	assert.Equal(t, 4.0, AceScore(map[string]interface{}{"ace_score": 4}))
	assert.Equal(t, 3.0, AceScore(map[string]interface{}{"ace_score": int64(3)}))
	assert.InDelta(t, 2.5, AceScore(map[string]interface{}{"ace_score": float32(2.5)}), 1e-6)
}

func TestUserID(t *testing.T) {
	assert.Equal(t, "anonymous", UserID(nil))
	assert.Equal(t, "anonymous", UserID(map[string]interface{}{}))
	assert.Equal(t, "anonymous", UserID(map[string]interface{}{"user_id": ""}))
	assert.Equal(t, "anonymous", UserID(map[string]interface{}{"user_id": 42}))
	assert.Equal(t, "alice", UserID(map[string]interface{}{"user_id": "alice"}))
}

func TestBrainError(t *testing.T) {
	inner := assert.AnError
	err := NewBrainError(ErrProvider, "call failed", inner)

	assert.Contains(t, err.Error(), "provider_error")
	assert.Contains(t, err.Error(), "call failed")
	assert.ErrorIs(t, err, inner)

	bare := NewBrainError(ErrValidation, "missing field", nil)
	assert.Equal(t, "validation_error: missing field", bare.Error())
}
