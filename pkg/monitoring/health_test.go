package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsci/curator/pkg/engine"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func TestHealthCheckerAllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCritical("database", &stubPinger{})
	h.RegisterOptional("pubmed", &stubPinger{})

	report := h.Check(context.Background())

	assert.Equal(t, StateHealthy, report.State)
	require.Len(t, report.Components, 2)
	for _, c := range report.Components {
		assert.Equal(t, StateHealthy, c.State)
		assert.Empty(t, c.Error)
	}
}

func TestHealthCheckerCriticalFailure(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCritical("database", &stubPinger{err: errors.New("connection refused")})
	h.RegisterOptional("pubmed", &stubPinger{})

	report := h.Check(context.Background())

	assert.Equal(t, StateUnhealthy, report.State)
	assert.Equal(t, "connection refused", report.Components[0].Error)
}

func TestHealthCheckerOptionalFailureDegrades(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCritical("database", &stubPinger{})
	h.RegisterOptional("crossref", &stubPinger{err: errors.New("timeout")})

	report := h.Check(context.Background())
	assert.Equal(t, StateDegraded, report.State)
}

func TestHealthCheckerNoComponents(t *testing.T) {
	h := NewHealthChecker()
	report := h.Check(context.Background())
	assert.Equal(t, StateUnknown, report.State)
}

func TestHealthCheckerIgnoresNilPingers(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterOptional("perplexity", nil)

	report := h.Check(context.Background())
	assert.Empty(t, report.Components)
}

func TestHealthCheckerLastReport(t *testing.T) {
	h := NewHealthChecker()
	assert.Nil(t, h.LastReport())

	h.RegisterCritical("database", &stubPinger{})
	h.Check(context.Background())

	last := h.LastReport()
	require.NotNil(t, last)
	assert.Equal(t, StateHealthy, last.State)
}

func TestServerHealthEndpoint(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCritical("database", &stubPinger{})
	srv := NewServer("0", h, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StateHealthy, report.State)
}

func TestServerHealthEndpointUnhealthy(t *testing.T) {
	h := NewHealthChecker()
	h.RegisterCritical("database", &stubPinger{err: errors.New("down")})
	srv := NewServer("0", h, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerStatusEndpoint(t *testing.T) {
	h := NewHealthChecker()
	started := time.Now()
	status := func() engine.Status {
		return engine.Status{Running: true, StartedAt: &started}
	}
	srv := NewServer("0", h, status)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "engine")

	var engineStatus engine.Status
	require.NoError(t, json.Unmarshal(body["engine"], &engineStatus))
	assert.True(t, engineStatus.Running)
}
