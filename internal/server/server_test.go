package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finmail/internal/config"
	"github.com/Veraticus/finmail/internal/extract"
	"github.com/Veraticus/finmail/internal/mailbox"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/orchestrator"
	"github.com/Veraticus/finmail/internal/session"
	"github.com/Veraticus/finmail/internal/testutil"
)

type stubMailbox struct {
	emails []model.Email
}

func (s stubMailbox) Search(_ context.Context, _ string, _ int) ([]model.Email, error) {
	return s.emails, nil
}

type stubExchange string

func (s stubExchange) Health(context.Context) string { return string(s) }

func newTestServer(t *testing.T, exchange HealthReporter) (*httptest.Server, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	deps := orchestrator.Deps{
		Mailbox: mailbox.Static{Mailbox: stubMailbox{emails: []model.Email{{
			ID:      "msg-1",
			Subject: "Invoice #INV-001 Payment Due",
			From:    "billing@acme.com",
			Body:    "Total Amount Due: $347.35 USD\nDue Date: 02/15/2024",
		}}}},
		Store:     db.Storage,
		Extractor: extract.New(nil),
		Sessions:  session.NewManager(),
	}
	orch, err := orchestrator.New(deps, deps.Capabilities(), orchestrator.WithOutputDir(""))
	require.NoError(t, err)

	h := NewHandler(orch, exchange, "test")
	h.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(h.Router(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv, db
}

func invoke(t *testing.T, srv *httptest.Server, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/invocations", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getJSON(t *testing.T, srv *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestInvocations_ReviewFlow(t *testing.T) {
	srv, db := newTestServer(t, nil)

	resp, out := invoke(t, srv, `{"tool":"process_emails_interactive","arguments":{"session_id":"s1"}}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "success", out["status"])
	assert.EqualValues(t, 1, out["total_emails"])

	resp, out = invoke(t, srv,
		`{"tool":"confirm_email_data","arguments":{"session_id":"s1","email_id":"msg-1","modifications":{"amount":500}}}`,
		map[string]string{UserIDHeader: "admin_ops"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, out["modifications_applied"])

	_, out = invoke(t, srv, `{"tool":"save_confirmed_data","arguments":{"session_id":"s1"}}`, nil)
	assert.Equal(t, "success", out["status"])
	assert.EqualValues(t, 1, out["saved_count"])
	assert.Equal(t, "500", db.MustGet("msg-1").Info.Amount.String())
}

func TestInvocations_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		wantStatus int
		wantError  string
	}{
		{name: "malformed body", body: `{"tool":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "missing tool", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "tool is required"},
		{name: "unknown tool", body: `{"tool":"calculator"}`, wantStatus: http.StatusNotFound, wantError: "Unknown tool"},
		{
			name:       "permission denied",
			body:       `{"tool":"set_tool_enabled","user_id":"bob","arguments":{"name":"list_tools","enabled":false}}`,
			wantStatus: http.StatusForbidden,
			wantError:  "Permission denied",
		},
		{
			name:       "tool error",
			body:       `{"tool":"get_session_status","arguments":{}}`,
			wantStatus: http.StatusOK,
			wantError:  "Failed to get session status",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := invoke(t, srv, tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, out["error"], tt.wantError)
		})
	}
}

func TestTools(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, out := getJSON(t, srv, "/tools")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	stats := out["statistics"].(map[string]any)
	assert.EqualValues(t, 9, stats["total_tools"])
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, stubExchange("operational"))

	resp, out := getJSON(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, ServiceName, out["service"])
	assert.Equal(t, "2024-02-01T09:00:00Z", out["timestamp"])
	assert.Equal(t, map[string]any{
		"database":         "connected",
		"exchange_service": "operational",
		"email_processor":  "available",
	}, out["components"])

	_, out = getJSON(t, srv, "/ready")
	assert.Equal(t, "ready", out["status"])
	deps := out["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["session_manager"])
	assert.Equal(t, false, deps["llm_analyzer"])

	resp, out = getJSON(t, srv, "/health/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])

	resp, out = getJSON(t, srv, "/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestHealthReady_Failures(t *testing.T) {
	srv, db := newTestServer(t, stubExchange("degraded"))

	resp, out := getJSON(t, srv, "/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", out["status"])

	require.NoError(t, db.Storage.Close())
	resp, out = getJSON(t, srv, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "fail", out["status"])

	_, out = getJSON(t, srv, "/health")
	assert.Equal(t, "disconnected", out["components"].(map[string]any)["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	_, _ = getJSON(t, srv, "/health/live")

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `finmail_http_requests_total{method="GET",path="/health/live",status="200"}`)
}

func TestRequestID_Propagates(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	cfg := config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
