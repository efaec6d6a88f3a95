package security

import (
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/middleware"
)

// maxInputLength is the hard cap applied by SanitizeInput, in characters.
const maxInputLength = 10000

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// FilterResult is the outcome of a content filter pass. Safe is true iff
// no flags were raised.
type FilterResult struct {
	Safe     bool
	Content  string
	Flags    []string
	Original string
}

// userWindow holds one user's sliding rate-limit windows. Timestamps older
// than the trailing interval are pruned on every check.
type userWindow struct {
	mu     sync.Mutex
	minute []time.Time
	hour   []time.Time
}

// Gate enforces rate limiting, content filtering, input sanitization and
// user validation. All checks are local and never panic outward.
type Gate struct {
	cfg     *config.SecurityConfig
	mu      sync.RWMutex
	windows map[string]*userWindow
	metrics *middleware.Metrics
	logger  *logrus.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewGate creates a security gate from configuration.
func NewGate(cfg *config.SecurityConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		windows: make(map[string]*userWindow),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CheckRateLimit prunes the user's windows and reports whether another
// request is allowed. A refused attempt is not recorded, so refusals never
// consume capacity.
func (g *Gate) CheckRateLimit(userID string) bool {
	if !g.cfg.RateLimiting.Enabled {
		return true
	}

	w := g.lockWindow(userID)
	defer w.mu.Unlock()

	now := g.now()
	w.minute = prune(w.minute, now.Add(-time.Minute))
	w.hour = prune(w.hour, now.Add(-time.Hour))

	if len(w.minute) >= g.cfg.RateLimiting.MaxRequestsPerMinute {
		g.logSecurityEvent("rate_limit_minute", userID, logrus.Fields{
			"requests": len(w.minute),
		})
		return false
	}

	if len(w.hour) >= g.cfg.RateLimiting.MaxRequestsPerHour {
		g.logSecurityEvent("rate_limit_hour", userID, logrus.Fields{
			"requests": len(w.hour),
		})
		return false
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return true
}

// FilterContent masks configured blocked words and flags trauma indicators.
// Blocked words are replaced with equal-length asterisks; trauma indicators
// are flagged but never alter the text.
func (g *Gate) FilterContent(content string) FilterResult {
	if !g.cfg.ContentFiltering.Enabled {
		return FilterResult{Safe: true, Content: content, Original: content}
	}

	filtered := content
	var flags []string

	lower := strings.ToLower(content)
	for _, word := range g.cfg.ContentFiltering.BlockedWords {
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			flags = append(flags, "blocked_word: "+word)
			re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(word))
			if err != nil {
				continue
			}
			filtered = re.ReplaceAllString(filtered, strings.Repeat("*", utf8.RuneCountInString(word)))
		}
	}

	for _, indicator := range g.cfg.ContentFiltering.TraumaIndicators {
		if indicator == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(indicator)) {
			flags = append(flags, "trauma_indicator: "+indicator)
		}
	}

	return FilterResult{
		Safe:     len(flags) == 0,
		Content:  filtered,
		Flags:    flags,
		Original: content,
	}
}

// SanitizeInput strips script and HTML tags, truncates to the character cap
// on a rune boundary and trims surrounding whitespace.
func (g *Gate) SanitizeInput(input string) string {
	sanitized := scriptTagRe.ReplaceAllString(input, "")
	sanitized = htmlTagRe.ReplaceAllString(sanitized, "")

	if utf8.RuneCountInString(sanitized) > maxInputLength {
		runes := []rune(sanitized)
		sanitized = string(runes[:maxInputLength])
	}

	return strings.TrimSpace(sanitized)
}

// ValidateUser checks authentication policy against the user context.
func (g *Gate) ValidateUser(userContext map[string]interface{}) bool {
	if !g.cfg.UserValidation.RequireAuth {
		return true
	}

	authenticated, _ := userContext["is_authenticated"].(bool)
	if authenticated {
		return true
	}

	if g.cfg.UserValidation.AllowAnonymous {
		return true
	}

	g.logSecurityEvent("auth_required", "", nil)
	return false
}

// PruneWindows drops expired timestamps from every user window and removes
// empty entries. Intended to run on the host's cleanup interval.
func (g *Gate) PruneWindows() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for userID, w := range g.windows {
		w.mu.Lock()
		w.minute = prune(w.minute, now.Add(-time.Minute))
		w.hour = prune(w.hour, now.Add(-time.Hour))
		empty := len(w.minute) == 0 && len(w.hour) == 0
		w.mu.Unlock()

		if empty {
			delete(g.windows, userID)
			removed++
		}
	}
	return removed
}

// lockWindow returns the user's window with its lock held, creating the
// entry if needed. The window lock is always taken before the registry lock
// is released, so a sweep can never delete an entry between lookup and use.
func (g *Gate) lockWindow(userID string) *userWindow {
	g.mu.RLock()
	if w, exists := g.windows[userID]; exists {
		w.mu.Lock()
		g.mu.RUnlock()
		return w
	}
	g.mu.RUnlock()

	g.mu.Lock()
	w, exists := g.windows[userID]
	if !exists {
		w = &userWindow{}
		g.windows[userID] = w
	}
	w.mu.Lock()
	g.mu.Unlock()
	return w
}

func (g *Gate) logSecurityEvent(eventType, userID string, fields logrus.Fields) {
	if g.metrics != nil {
		g.metrics.RecordSecurityEvent(eventType)
		if strings.HasPrefix(eventType, "rate_limit") {
			g.metrics.RecordRateLimitExceeded()
		}
	}

	entry := g.logger.WithField("event_type", eventType)
	if userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn("Security event")
}

// prune drops timestamps at or before the cutoff. Windows are append-only
// in time order, so the first kept index is a prefix scan.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && !times[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return times
	}
	return append(times[:0:0], times[idx:]...)
}
