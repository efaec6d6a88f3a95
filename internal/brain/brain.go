package brain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/analytics"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/i18n"
	"github.com/thinkxlife/brain/internal/middleware"
	"github.com/thinkxlife/brain/internal/models"
	"github.com/thinkxlife/brain/internal/provider"
	"github.com/thinkxlife/brain/internal/security"
	"github.com/thinkxlife/brain/internal/session"
	"github.com/thinkxlife/brain/internal/storage"
	"github.com/thinkxlife/brain/internal/strategy"
	"github.com/thinkxlife/brain/pkg/logger"
)

// maxMessageLength mirrors the inbound API contract, counted in characters.
const maxMessageLength = 10000

// SystemHealth summarizes the engine-level counters for health reporting.
type SystemHealth struct {
	Uptime          float64 `json:"uptime_seconds"`
	TotalRequests   int64   `json:"total_requests"`
	SuccessRate     float64 `json:"success_rate"`
	ErrorRate       float64 `json:"error_rate"`
	AvgResponseTime float64 `json:"average_response_time"`
}

// HealthReport aggregates provider health with system counters.
type HealthReport struct {
	Overall   provider.HealthState             `json:"overall"`
	Providers map[string]provider.HealthStatus `json:"providers"`
	System    SystemHealth                     `json:"system"`
	Timestamp time.Time                        `json:"timestamp"`
}

// Brain is the request router: it validates, applies security policy,
// resolves the per-application strategy, supplies session context, invokes
// a provider, post-processes the reply, and records analytics. Process
// never panics or errors to its caller; every failure becomes a structured
// Response.
type Brain struct {
	cfg        *config.Config
	gate       *security.Gate
	sessions   *session.Store
	contexts   *session.ContextStore
	registry   *provider.Registry
	analytics  *analytics.Aggregator
	strategies *strategy.Registry
	repository storage.Repository
	messages   *i18n.Localizer
	metrics    *middleware.Metrics
	logger     *logrus.Logger

	aceGateApps    map[models.Application]bool
	crisisTriggers []string
}

// New wires the brain from its collaborators. The repository may be nil;
// the engine then runs purely in memory.
func New(
	cfg *config.Config,
	gate *security.Gate,
	sessions *session.Store,
	contexts *session.ContextStore,
	registry *provider.Registry,
	aggregator *analytics.Aggregator,
	strategies *strategy.Registry,
	repository storage.Repository,
	messages *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Brain {
	aceGateApps := make(map[models.Application]bool, len(cfg.Security.ACEGate.Applications))
	for _, name := range cfg.Security.ACEGate.Applications {
		if app, ok := models.ParseApplication(name); ok {
			aceGateApps[app] = true
		}
	}

	triggers := make([]string, 0, len(cfg.Security.ContentFiltering.CrisisTriggers))
	for _, t := range cfg.Security.ContentFiltering.CrisisTriggers {
		if t != "" {
			triggers = append(triggers, strings.ToLower(t))
		}
	}

	return &Brain{
		cfg:            cfg,
		gate:           gate,
		sessions:       sessions,
		contexts:       contexts,
		registry:       registry,
		analytics:      aggregator,
		strategies:     strategies,
		repository:     repository,
		messages:       messages,
		metrics:        metrics,
		logger:         logger,
		aceGateApps:    aceGateApps,
		crisisTriggers: triggers,
	}
}

// Process handles one request end to end. It always returns a well-formed
// Response and never propagates a panic or error.
func (b *Brain) Process(ctx context.Context, req *models.Request) (resp *models.Response) {
	start := time.Now()

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	app := models.ApplicationGeneral

	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"panic":      r,
			}).Error("Recovered from panic while processing request")

			b.analytics.Record(app, "", false, time.Since(start))
			b.metrics.RecordRequest(string(app), "internal_error", time.Since(start))
			resp = b.errorResponse(requestID, models.ErrInternal, b.messages.Default(i18n.MsgInternalError, nil))
		}
	}()

	// Step 1: validation.
	if req.UserContext == nil {
		return b.rejected(requestID, models.ErrValidation, i18n.MsgUserContextMissing, nil)
	}
	if req.Application == "" {
		return b.rejected(requestID, models.ErrValidation, i18n.MsgApplicationMissing, nil)
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return b.rejected(requestID, models.ErrValidation, i18n.MsgMessageTooLong,
			map[string]interface{}{"Max": maxMessageLength})
	}

	message := b.gate.SanitizeInput(req.Message)
	if message == "" {
		return b.rejected(requestID, models.ErrValidation, i18n.MsgMessageRequired, nil)
	}

	app, known := models.ParseApplication(req.Application)
	if !known {
		b.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"application": req.Application,
		}).Warn("Unknown application, routing as general")
	}

	userID := models.UserID(req.UserContext)
	log := logger.WithRequest(b.logger, requestID, userID).WithField("application", app)

	// Step 2: security policy.
	if !b.gate.ValidateUser(req.UserContext) {
		log.Warn("User validation failed")
		return b.rejected(requestID, models.ErrSecurity, i18n.MsgAuthRequired, nil)
	}

	// The trauma-score gate is policy, not rate limiting: it refuses chat
	// outright on the configured applications regardless of limiter state.
	if b.aceGateApps[app] && models.AceScore(req.UserContext) >= b.cfg.Security.ACEGate.Threshold {
		log.WithField("ace_score", models.AceScore(req.UserContext)).Warn("ACE score restriction applied")
		b.metrics.RecordSecurityEvent("ace_restriction")
		refusal := b.errorResponse(requestID, models.ErrSecurity, "ACE score restriction")
		refusal.Message = b.messages.Default(i18n.MsgACERestricted, nil)
		return refusal
	}

	if !b.gate.CheckRateLimit(userID) {
		log.Warn("Rate limit exceeded")
		return b.rejected(requestID, models.ErrSecurity, i18n.MsgRateLimitExceeded, nil)
	}

	// Inbound content filter: masks blocked words, flags trauma indicators.
	filter := b.gate.FilterContent(message)
	if !filter.Safe {
		log.WithField("flags", filter.Flags).Info("Content filter raised flags")
	}
	message = filter.Content

	// Steps 3-4: session, history, and the per-application strategy.
	sessionID := b.resolveSession(ctx, req.SessionID, userID, app, log)
	history := b.loadHistory(ctx, sessionID, log)

	sanitized := *req
	sanitized.ID = requestID
	sanitized.Message = message

	strat := b.strategies.For(app)
	enhanced := strat.Build(&sanitized, history)

	// Step 5: provider selection and invocation under timeout.
	prov, err := b.registry.Select(app)
	if err != nil {
		log.WithError(err).Error("No provider available")
		b.analytics.Record(app, "", false, time.Since(start))
		b.metrics.RecordRequest(string(app), "no_provider", time.Since(start))
		b.appendUserTurn(ctx, sessionID, message)
		return b.rejected(requestID, models.ErrNoProvider, i18n.MsgNoProvider, nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Providers.Timeout)
	providerResp, err := prov.Process(callCtx, enhanced)
	cancel()

	elapsed := time.Since(start)

	if err != nil || providerResp == nil {
		if err != nil {
			entry := log.WithError(err).WithField("provider", prov.Name())
			var brainErr *models.BrainError
			if errors.As(err, &brainErr) {
				entry = entry.WithField("error_kind", string(brainErr.Kind))
			}
			entry.Error("Provider call failed")
		}
		b.analytics.Record(app, prov.Name(), false, elapsed)
		b.metrics.RecordRequest(string(app), "provider_error", elapsed)
		b.metrics.RecordProviderRequest(prov.Name(), "error", elapsed)
		b.appendUserTurn(ctx, sessionID, message)
		return b.rejected(requestID, models.ErrProvider, i18n.MsgProviderError, nil)
	}

	// Step 6: post-process for crisis triggers.
	providerResp.ID = requestID
	providerResp.Timestamp = time.Now()
	if providerResp.Metadata == nil {
		providerResp.Metadata = &models.ResponseMetadata{Provider: prov.Name()}
	}
	providerResp.Metadata.Application = string(app)
	providerResp.Metadata.ProcessingTime = elapsed.Seconds()
	if len(providerResp.Metadata.Sources) == 0 {
		providerResp.Metadata.Sources = strat.Sources()
	}
	if providerResp.Data == nil {
		providerResp.Data = make(map[string]interface{})
	}
	providerResp.Data["session_id"] = sessionID

	b.applyCrisisDisclaimer(providerResp)

	// Step 7: analytics.
	status := "success"
	if !providerResp.Success {
		status = "error"
	}
	b.analytics.Record(app, prov.Name(), providerResp.Success, elapsed)
	b.metrics.RecordRequest(string(app), status, elapsed)
	b.metrics.RecordProviderRequest(prov.Name(), status, elapsed)

	// Step 8: context append. The user turn is always recorded once a
	// session exists; the assistant turn only once a reply does.
	b.appendUserTurn(ctx, sessionID, message)
	if providerResp.Success && providerResp.Message != "" {
		b.contexts.AddMessage(sessionID, models.RoleAssistant, providerResp.Message)
		b.saveToRepository(ctx, sessionID, models.RoleAssistant, providerResp.Message)
		b.sessions.Touch(sessionID, map[string]interface{}{"last_application": string(app)})
	}

	return providerResp
}

// EndSession explicitly ends a session in the store and the repository.
func (b *Brain) EndSession(ctx context.Context, sessionID string) {
	b.sessions.End(sessionID)
	if b.repository != nil {
		if err := b.repository.EndSession(ctx, sessionID); err != nil {
			b.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to end session in repository")
		}
	}
}

// Health reports overall provider health plus system counters.
func (b *Brain) Health(ctx context.Context) *HealthReport {
	overall, providers := b.registry.HealthAll(ctx)
	snapshot := b.analytics.Snapshot()

	return &HealthReport{
		Overall:   overall,
		Providers: providers,
		System: SystemHealth{
			Uptime:          snapshot.Uptime,
			TotalRequests:   snapshot.TotalRequests,
			SuccessRate:     snapshot.SuccessRate,
			ErrorRate:       snapshot.ErrorRate,
			AvgResponseTime: snapshot.AvgResponseTime,
		},
		Timestamp: time.Now(),
	}
}

// Analytics returns the current aggregator snapshot.
func (b *Brain) Analytics() analytics.Snapshot {
	return b.analytics.Snapshot()
}

// Cleanup runs the periodic sweeps. Hosts must schedule this at a fixed
// interval; normal request processing only evicts lazily.
func (b *Brain) Cleanup() {
	expiredSessions := b.sessions.Cleanup()
	expiredContexts := b.contexts.Cleanup(b.cfg.Context.Retention)
	prunedWindows := b.gate.PruneWindows()
	b.metrics.SetActiveSessions(float64(b.sessions.Len()))

	b.logger.WithFields(logrus.Fields{
		"sessions": expiredSessions,
		"contexts": expiredContexts,
		"windows":  prunedWindows,
	}).Debug("Cleanup sweep finished")
}

// Close shuts down the providers.
func (b *Brain) Close() {
	b.registry.CloseAll()
}

// resolveSession returns a usable session id, creating a session when the
// supplied id is missing, unknown, or expired. The durable repository is
// consulted first so session ids survive restarts when it is reachable.
func (b *Brain) resolveSession(ctx context.Context, sessionID, userID string, app models.Application, log *logrus.Entry) string {
	if sessionID != "" {
		if s := b.sessions.Get(sessionID); s != nil {
			return s.ID
		}
	}

	if b.repository != nil {
		if durable, err := b.repository.GetOrCreateSession(ctx, userID); err == nil && durable != "" {
			b.metrics.RecordSessionCreated()
			return b.sessions.CreateWithID(durable, userID, app)
		} else if err != nil {
			log.WithError(err).Warn("Repository unavailable for session lookup, continuing in memory")
		}
	}

	b.metrics.RecordSessionCreated()
	return b.sessions.Create(userID, app)
}

// loadHistory reads conversation history, falling back to the repository
// when this process has none for the session yet.
func (b *Brain) loadHistory(ctx context.Context, sessionID string, log *logrus.Entry) []models.Message {
	history := b.contexts.History(sessionID)
	if len(history) > 0 || b.repository == nil {
		return history
	}

	stored, err := b.repository.SessionHistory(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("Repository unavailable for history, continuing in memory")
		return nil
	}
	return stored
}

func (b *Brain) appendUserTurn(ctx context.Context, sessionID, message string) {
	if sessionID == "" {
		return
	}
	b.contexts.AddMessage(sessionID, models.RoleUser, message)
	b.saveToRepository(ctx, sessionID, models.RoleUser, message)
}

func (b *Brain) saveToRepository(ctx context.Context, sessionID, role, content string) {
	if b.repository == nil {
		return
	}
	if err := b.repository.SaveMessage(ctx, sessionID, role, content); err != nil {
		b.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to persist message")
	}
}

// applyCrisisDisclaimer appends the crisis-resource disclaimer when the
// outgoing message matches any trigger word.
func (b *Brain) applyCrisisDisclaimer(resp *models.Response) {
	if !resp.Success || resp.Message == "" {
		return
	}

	lower := strings.ToLower(resp.Message)
	for _, trigger := range b.crisisTriggers {
		if strings.Contains(lower, trigger) {
			resp.Message += b.messages.Default(i18n.MsgCrisisDisclaimer, nil)
			return
		}
	}
}

// rejected logs and builds a failure response for pre-provider rejections.
func (b *Brain) rejected(requestID string, kind models.ErrorKind, messageID string, data map[string]interface{}) *models.Response {
	text := b.messages.Default(messageID, data)
	b.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"error_type": kind,
	}).Info(text)
	return b.errorResponse(requestID, kind, text)
}

func (b *Brain) errorResponse(requestID string, kind models.ErrorKind, message string) *models.Response {
	return &models.Response{
		ID:      requestID,
		Success: false,
		Error:   message,
		Data: map[string]interface{}{
			"error_type": string(kind),
		},
		Timestamp: time.Now(),
	}
}
