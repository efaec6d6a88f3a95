package i18n

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/thinkxlife/brain/internal/config"
	"golang.org/x/text/language"
)

// Localizer manages the canned user-facing messages. English defaults are
// registered in code so the engine works without any message files; extra
// languages may be layered on from the configured directory.
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// Message IDs
const (
	MsgMessageRequired    = "message_required"
	MsgMessageTooLong     = "message_too_long"
	MsgApplicationMissing = "application_missing"
	MsgUserContextMissing = "user_context_missing"
	MsgAuthRequired       = "auth_required"
	MsgRateLimitExceeded  = "rate_limit_exceeded"
	MsgACERestricted      = "ace_restricted"
	MsgNoProvider         = "no_provider"
	MsgProviderError      = "provider_error"
	MsgInternalError      = "internal_error"
	MsgCrisisDisclaimer   = "crisis_disclaimer"
)

var defaults = []*i18n.Message{
	{ID: MsgMessageRequired, Other: "Message is required and cannot be empty"},
	{ID: MsgMessageTooLong, Other: "Message too long (max {{.Max}} characters)"},
	{ID: MsgApplicationMissing, Other: "Application is required"},
	{ID: MsgUserContextMissing, Other: "User context is required"},
	{ID: MsgAuthRequired, Other: "Authentication required"},
	{ID: MsgRateLimitExceeded, Other: "Rate limit exceeded. Please try again later."},
	{ID: MsgACERestricted, Other: "Chat access is restricted for your safety. Please contact info@thinkround.org to learn more about our Trauma Transformation Training program."},
	{ID: MsgNoProvider, Other: "No AI provider is currently available"},
	{ID: MsgProviderError, Other: "The AI provider failed to process your request"},
	{ID: MsgInternalError, Other: "An internal error occurred while processing your request"},
	{ID: MsgCrisisDisclaimer, Other: "\n\n⚠️ If you're experiencing crisis thoughts, please contact a mental health professional or crisis hotline immediately."},
}

// NewLocalizer creates a new localizer with built-in English defaults plus
// any configured language files.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	if err := bundle.AddMessages(language.English, defaults...); err != nil {
		return nil, fmt.Errorf("failed to register default messages: %w", err)
	}

	languages := []string{"en"}
	for _, lang := range cfg.Languages {
		path := fmt.Sprintf("%s/%s.json", cfg.Directory, lang)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		languages = append(languages, lang)
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	defaultLanguage := cfg.DefaultLanguage
	if _, ok := localizers[defaultLanguage]; !ok {
		defaultLanguage = "en"
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: defaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns a localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Default returns a message in the default language.
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}
