package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultRateLimitWindow = 60 * time.Second

// Channel delivers an alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	MinSeverity     Severity
	RateLimitWindow time.Duration
}

// Service fans alerts out to its channels, dropping those below the minimum
// severity and repeats of the same (severity, title) pair within the
// rate-limit window.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	channels    []Channel
	minSeverity Severity
	window      time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService creates an alert service. Returns nil when no channels are
// configured, so callers can hold a nil service without guarding every call.
func NewService(cfg ServiceConfig, channels ...Channel) *Service {
	if len(channels) == 0 {
		return nil
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = SeverityWarning
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaultRateLimitWindow
	}
	return &Service{
		channels:    channels,
		minSeverity: cfg.MinSeverity,
		window:      cfg.RateLimitWindow,
		logger:      slog.Default().With("component", "alerting"),
		lastSent:    make(map[string]time.Time),
	}
}

// Send dispatches an alert to every channel. Returns whether the alert was
// dispatched (false when filtered, rate-limited, or the service is nil).
// Fail-open: delivery errors are logged, never returned.
func (s *Service) Send(ctx context.Context, alert Alert) bool {
	if s == nil {
		return false
	}
	if !alert.Severity.AtLeast(s.minSeverity) {
		return false
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	key := string(alert.Severity) + ":" + alert.Title
	s.mu.Lock()
	if last, ok := s.lastSent[key]; ok && time.Since(last) < s.window {
		s.mu.Unlock()
		s.logger.Debug("Alert rate limited", "key", key)
		return false
	}
	s.lastSent[key] = time.Now()
	s.mu.Unlock()

	for _, ch := range s.channels {
		if err := ch.Send(ctx, alert); err != nil {
			s.logger.Error("Failed to deliver alert",
				"channel", ch.Name(), "title", alert.Title, "error", err)
		}
	}
	return true
}

// AlertHighErrorRate reports an agent whose error ratio crossed the
// configured threshold. Rates above 0.7 escalate to error severity.
func (s *Service) AlertHighErrorRate(ctx context.Context, agent string, rate, threshold float64) {
	severity := SeverityWarning
	if rate > 0.7 {
		severity = SeverityError
	}
	s.Send(ctx, Alert{
		Severity: severity,
		Title:    "High Error Rate: " + agent,
		Message:  fmt.Sprintf("Agent %s error rate %.0f%% exceeds threshold %.0f%%", agent, rate*100, threshold*100),
		Details:  map[string]string{"agent": agent, "error_rate": fmt.Sprintf("%.2f", rate)},
	})
}

// AlertSchedulerStopped reports an engine stop with a reason.
func (s *Service) AlertSchedulerStopped(ctx context.Context, reason string) {
	s.Send(ctx, Alert{
		Severity: SeverityCritical,
		Title:    "Scheduler Stopped",
		Message:  "The curation engine stopped: " + reason,
	})
}

// AlertAgentUnhealthy reports an agent failing its health check.
func (s *Service) AlertAgentUnhealthy(ctx context.Context, agent, detail string) {
	s.Send(ctx, Alert{
		Severity: SeverityWarning,
		Title:    "Agent Unhealthy: " + agent,
		Message:  detail,
		Details:  map[string]string{"agent": agent},
	})
}

// AlertDatabaseIssue reports a persistence failure.
func (s *Service) AlertDatabaseIssue(ctx context.Context, err error) {
	s.Send(ctx, Alert{
		Severity: SeverityError,
		Title:    "Database Issue",
		Message:  err.Error(),
	})
}

// AlertAPILimitReached reports an upstream rate limit.
func (s *Service) AlertAPILimitReached(ctx context.Context, api string) {
	s.Send(ctx, Alert{
		Severity: SeverityWarning,
		Title:    "API Limit Reached: " + api,
		Message:  "Upstream " + api + " is rate limiting requests, backing off",
		Details:  map[string]string{"api": api},
	})
}
