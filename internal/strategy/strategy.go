package strategy

import (
	"fmt"
	"strings"

	"github.com/thinkxlife/brain/internal/models"
)

// Strategy builds the provider-facing request for one application tenant.
// Strategies are pure: the same request and history always produce the same
// enhanced request.
type Strategy interface {
	Application() models.Application
	Build(req *models.Request, history []models.Message) *models.EnhancedRequest
	Sources() []string
}

// Registry binds every member of the closed application set to its
// strategy. Resolution never fails; unknown applications resolve to the
// general strategy.
type Registry struct {
	strategies map[models.Application]Strategy
	general    Strategy
}

// NewRegistry builds the registry with all built-in strategies bound.
func NewRegistry() *Registry {
	general := &generalStrategy{}
	r := &Registry{
		strategies: make(map[models.Application]Strategy),
		general:    general,
	}
	for _, s := range []Strategy{
		&healingRoomsStrategy{},
		&aiAwarenessStrategy{},
		&chatbotStrategy{},
		&complianceStrategy{},
		&exteriorSpacesStrategy{},
		general,
	} {
		r.strategies[s.Application()] = s
	}
	return r
}

// For resolves the strategy for an application.
func (r *Registry) For(application models.Application) Strategy {
	if s, ok := r.strategies[application]; ok {
		return s
	}
	return r.general
}

// aceBand describes trauma exposure for prompt construction. Band edges
// follow the assessment scoring: >4 higher, >1 moderate, otherwise lower.
func aceBand(score float64) string {
	switch {
	case score > 4:
		return "higher"
	case score > 1:
		return "moderate"
	default:
		return "lower"
	}
}

func baseEnhanced(app models.Application, req *models.Request, history []models.Message) *models.EnhancedRequest {
	return &models.EnhancedRequest{
		Message:     req.Message,
		History:     history,
		Application: app,
		UserContext: req.UserContext,
	}
}

type healingRoomsStrategy struct{}

func (s *healingRoomsStrategy) Application() models.Application { return models.ApplicationHealingRooms }

func (s *healingRoomsStrategy) Sources() []string { return nil }

func (s *healingRoomsStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	score := models.AceScore(req.UserContext)

	var b strings.Builder
	b.WriteString("You are Zoe, an empathetic AI companion for healing rooms.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Always prioritize user safety and emotional well-being\n")
	b.WriteString("- Use gentle, non-triggering language that validates their experiences\n")
	b.WriteString("- Never provide medical or therapeutic advice\n")
	b.WriteString("- Encourage professional help when appropriate\n\n")
	b.WriteString("User Context:\n")
	fmt.Fprintf(&b, "- ACE Score: %g\n", score)
	fmt.Fprintf(&b, "- This indicates %s trauma exposure\n", aceBand(score))
	b.WriteString("- Respond with extra empathy, validation, and hope")

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = b.String()
	enhanced.TraumaSafe = true
	return enhanced
}

type aiAwarenessStrategy struct{}

func (s *aiAwarenessStrategy) Application() models.Application { return models.ApplicationAIAwareness }

func (s *aiAwarenessStrategy) Sources() []string {
	return []string{"ThinkxLife AI Ethics Database", "Educational Content"}
}

func (s *aiAwarenessStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	var b strings.Builder
	b.WriteString("You are an AI representative showcasing thoughtful AI integration.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Explain how AI enhances healing, arts, and community programs\n")
	b.WriteString("- Focus on AI as an enhancement tool, not a replacement for human connection\n")
	b.WriteString("- Emphasize trauma-informed, culturally sensitive AI applications\n")

	// Tailor depth to the caller's declared familiarity with AI.
	if level, ok := req.UserContext["ai_knowledge_level"].(string); ok && level != "" {
		fmt.Fprintf(&b, "\nThe user has %s-level AI knowledge; adjust technical depth accordingly.", level)
	}

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = b.String()
	enhanced.Educational = true
	return enhanced
}

type chatbotStrategy struct{}

func (s *chatbotStrategy) Application() models.Application { return models.ApplicationChatbot }

func (s *chatbotStrategy) Sources() []string { return nil }

func (s *chatbotStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	prompt := "You are an AI assistant focused on ethical AI, healing, and human wellbeing.\n\n" +
		"Guidelines:\n" +
		"- Be helpful, empathetic, and ethical\n" +
		"- Respect user privacy and boundaries\n" +
		"- Promote positive mental health and wellbeing\n" +
		"- Never provide medical, legal, or financial advice"

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = prompt
	return enhanced
}

type complianceStrategy struct{}

func (s *complianceStrategy) Application() models.Application { return models.ApplicationCompliance }

func (s *complianceStrategy) Sources() []string {
	return []string{"Regulatory Database", "Compliance Guidelines"}
}

func (s *complianceStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	prompt := "You are a compliance-focused AI assistant.\n\n" +
		"Guidelines:\n" +
		"- Provide general information about AI regulations\n" +
		"- Focus on GDPR, AI Act, and ethical AI frameworks\n" +
		"- Never provide legal advice\n" +
		"- Encourage consultation with legal professionals"

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = prompt
	enhanced.RegulatoryFocus = true
	return enhanced
}

type exteriorSpacesStrategy struct{}

func (s *exteriorSpacesStrategy) Application() models.Application {
	return models.ApplicationExteriorSpaces
}

func (s *exteriorSpacesStrategy) Sources() []string { return nil }

func (s *exteriorSpacesStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	prompt := "You are a creative AI assistant for exterior space design.\n\n" +
		"Guidelines:\n" +
		"- Inspire creativity in outdoor and architectural design\n" +
		"- Consider sustainability and environmental impact\n" +
		"- Promote inclusive and accessible design\n" +
		"- Balance aesthetics with functionality"

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = prompt
	enhanced.Creative = true
	return enhanced
}

type generalStrategy struct{}

func (s *generalStrategy) Application() models.Application { return models.ApplicationGeneral }

func (s *generalStrategy) Sources() []string { return nil }

func (s *generalStrategy) Build(req *models.Request, history []models.Message) *models.EnhancedRequest {
	var b strings.Builder
	b.WriteString("You are Zoe, an empathetic AI assistant.\n\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Be helpful, empathetic, and supportive\n")
	b.WriteString("- Maintain ethical AI principles\n")
	b.WriteString("- Respect user privacy and boundaries\n")
	b.WriteString("- Stay within your knowledge and capabilities")

	// A disclosed trauma history shifts tone even outside the healing rooms.
	if models.AceScore(req.UserContext) > 0 {
		b.WriteString("\n- Use trauma-informed language and approaches\n")
		b.WriteString("- Be especially gentle and validating\n")
		b.WriteString("- Avoid triggering language or assumptions")
	}

	enhanced := baseEnhanced(s.Application(), req, history)
	enhanced.SystemPrompt = b.String()
	return enhanced
}
