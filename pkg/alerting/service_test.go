package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityInfo))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityError))
	assert.True(t, SeverityError.Valid())
	assert.False(t, Severity("fatal").Valid())
}

func TestNilServiceIsSafe(t *testing.T) {
	var s *Service
	assert.False(t, s.Send(context.Background(), Alert{Severity: SeverityCritical, Title: "x"}))
	s.AlertSchedulerStopped(context.Background(), "test")
	s.AlertDatabaseIssue(context.Background(), assert.AnError)
}

func TestNewServiceRequiresChannels(t *testing.T) {
	assert.Nil(t, NewService(ServiceConfig{}))
}

func TestSendFiltersBySeverity(t *testing.T) {
	ch := &recordingChannel{}
	s := NewService(ServiceConfig{MinSeverity: SeverityError}, ch)

	assert.False(t, s.Send(context.Background(), Alert{Severity: SeverityWarning, Title: "low"}))
	assert.True(t, s.Send(context.Background(), Alert{Severity: SeverityCritical, Title: "high"}))
	assert.Equal(t, 1, ch.count())
}

func TestSendRateLimitsRepeats(t *testing.T) {
	ch := &recordingChannel{}
	s := NewService(ServiceConfig{MinSeverity: SeverityInfo, RateLimitWindow: 50 * time.Millisecond}, ch)

	a := Alert{Severity: SeverityError, Title: "Database Issue", Message: "first"}
	assert.True(t, s.Send(context.Background(), a))
	assert.False(t, s.Send(context.Background(), a))

	// Same title at a different severity is a distinct key.
	assert.True(t, s.Send(context.Background(), Alert{Severity: SeverityWarning, Title: "Database Issue"}))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, s.Send(context.Background(), a))
	assert.Equal(t, 3, ch.count())
}

func TestSendSurvivesChannelFailure(t *testing.T) {
	bad := &recordingChannel{err: assert.AnError}
	good := &recordingChannel{}
	s := NewService(ServiceConfig{MinSeverity: SeverityInfo}, bad, good)

	assert.True(t, s.Send(context.Background(), Alert{Severity: SeverityError, Title: "x"}))
	assert.Equal(t, 1, good.count())
}

func TestHighErrorRateEscalation(t *testing.T) {
	ch := &recordingChannel{}
	s := NewService(ServiceConfig{MinSeverity: SeverityInfo}, ch)

	s.AlertHighErrorRate(context.Background(), "research", 0.55, 0.5)
	s.AlertHighErrorRate(context.Background(), "extraction", 0.85, 0.5)

	require.Equal(t, 2, ch.count())
	assert.Equal(t, SeverityWarning, ch.alerts[0].Severity)
	assert.Equal(t, SeverityError, ch.alerts[1].Severity)
}

func TestTelegramChannelSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken-123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannel("token-123", "chat-9")
	ch.baseURL = srv.URL

	err := ch.Send(context.Background(), Alert{
		Severity: SeverityCritical,
		Title:    "Scheduler Stopped",
		Message:  "shutdown requested",
	})
	require.NoError(t, err)
	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Contains(t, got["text"], "[CRITICAL] Scheduler Stopped")
	assert.Contains(t, got["text"], "shutdown requested")
}

func TestTelegramChannelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("t", "c")
	ch.baseURL = srv.URL

	err := ch.Send(context.Background(), Alert{Severity: SeverityInfo, Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestChannelConstructorsRejectEmptyConfig(t *testing.T) {
	assert.Nil(t, NewSlackChannel(""))
	assert.Nil(t, NewTelegramChannel("", "chat"))
	assert.Nil(t, NewTelegramChannel("token", ""))
}

func TestSlackAttachmentFieldsSorted(t *testing.T) {
	fields := detailFields(map[string]string{"b": "2", "a": "1"})
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Title)
	assert.Equal(t, "b", fields[1].Title)
}
