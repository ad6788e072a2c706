package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarbot/gateway-service/database"
	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/models"
	"github.com/oscarbot/gateway-service/services"
)

const testToken = "secret-token"

type testStack struct {
	server   *httptest.Server
	accounts *services.AccountStore
	sessions services.SessionManager
	store    *logger.Store
}

func newTestStack(t *testing.T) *testStack {
	db := database.SetupSQLiteTestDB(t)
	store := logger.NewStore(db)
	audit := logger.New(store)
	accounts := services.NewAccountStore(db)
	sessions := services.NewMemorySessionStore()
	csrf := services.NewCSRFSigner("test-secret")

	registry := gateway.NewRegistry(
		services.NewUserService(accounts, sessions, csrf, services.LogMailer{}),
		services.NewTestService(false),
	)
	gate := gateway.NewGate(registry, testToken, audit)
	dispatcher := gateway.NewDispatcher(registry, audit, false, false)

	gatewayHandler := NewGatewayHandler(gate, dispatcher, sessions)
	logsHandler := NewLogsHandler(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", Health)
	mux.HandleFunc("/gateway/{group}/{service}", gatewayHandler.Handle)
	mux.HandleFunc("GET /logs/totals", logsHandler.GetTotals)
	mux.HandleFunc("GET /logs/{type}/{id}", logsHandler.GetEntry)
	mux.HandleFunc("POST /logs/purge", logsHandler.Purge)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testStack{server: server, accounts: accounts, sessions: sessions, store: store}
}

func (s *testStack) call(t *testing.T, method, path string, body any, modify func(*http.Request)) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(gateway.TokenHeader, testToken)
	if modify != nil {
		modify(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestGatewayHandler(t *testing.T) {
	t.Run("Public service round trip", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/gateway/tests/isAlive", nil, nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["status"])
		response, ok := body["response"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Server is OK", response["message"])
	})

	t.Run("Missing token header", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/gateway/tests/isAlive", nil, func(r *http.Request) {
			r.Header.Del(gateway.TokenHeader)
		})

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Access denied.", body["message"])
	})

	t.Run("Wrong token", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/gateway/tests/isAlive", nil, func(r *http.Request) {
			r.Header.Set(gateway.TokenHeader, "wrong")
		})

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Access denied.", body["message"])
	})

	t.Run("Wrong method sets the Allow header", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodPost, "/gateway/tests/isAlive", map[string]any{"x": 1}, nil)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
		assert.Equal(t, "Method not allowed.", body["message"])
	})

	t.Run("Unknown service", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/gateway/tests/noSuchService", nil, nil)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Not found (unknown service).", body["message"])
	})

	t.Run("Login then logout with session cookie", func(t *testing.T) {
		stack := newTestStack(t)
		user := &models.User{Name: "bob", Email: "bob@example.com", Active: true}
		require.NoError(t, stack.accounts.SetPassword(user, "hunter2"))
		require.NoError(t, stack.accounts.Create(context.Background(), user))

		resp, body := stack.call(t, http.MethodPost, "/gateway/user/login", map[string]any{
			"username": "bob",
			"password": "hunter2",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, true, body["status"])

		response, ok := body["response"].(map[string]any)
		require.True(t, ok)
		sessionID, ok := response["session_id"].(string)
		require.True(t, ok)
		require.NotEmpty(t, sessionID)

		resp, body = stack.call(t, http.MethodPost, "/gateway/user/logout", map[string]any{
			"username": "bob",
		}, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: services.SessionName, Value: sessionID})
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["status"])

		session, err := stack.sessions.Get(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Nil(t, session)
	})

	t.Run("Private service without a session is denied", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodPost, "/gateway/user/logout", map[string]any{
			"username": "bob",
		}, nil)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Access denied (only register users).", body["message"])
	})

	t.Run("Session id can travel in a header", func(t *testing.T) {
		stack := newTestStack(t)
		user := &models.User{Name: "bob", Email: "bob@example.com", Active: true}
		require.NoError(t, stack.accounts.SetPassword(user, "hunter2"))
		require.NoError(t, stack.accounts.Create(context.Background(), user))
		session, err := stack.sessions.Create(context.Background(), user)
		require.NoError(t, err)

		resp, body := stack.call(t, http.MethodPost, "/gateway/user/loginStatus", map[string]any{
			"username": "bob",
		}, func(r *http.Request) {
			r.Header.Set("X-Session-Id", session.ID)
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["status"])
	})
}

func TestLogsHandler(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/health", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("Totals and purge", func(t *testing.T) {
		stack := newTestStack(t)
		ctx := context.Background()
		require.NoError(t, stack.store.CreateServerEntry(ctx, &models.LogEntry{Message: "s", Timestamp: 1}))
		require.NoError(t, stack.store.CreateClientEntry(ctx, &models.LogEntry{Message: "c", Timestamp: 1}))

		resp, body := stack.call(t, http.MethodGet, "/logs/totals", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["num_events_server"])
		assert.Equal(t, float64(1), body["num_events_client"])

		resp, body = stack.call(t, http.MethodPost, "/logs/purge", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["num_events_server"])
		assert.Equal(t, float64(1), body["num_events_client"])

		_, body = stack.call(t, http.MethodGet, "/logs/totals", nil, nil)
		assert.Equal(t, float64(0), body["num_events_server"])
	})

	t.Run("Totals filtered by severity name", func(t *testing.T) {
		stack := newTestStack(t)
		ctx := context.Background()
		require.NoError(t, stack.store.CreateServerEntry(ctx, &models.LogEntry{Message: "e", Severity: logger.SeverityError, Timestamp: 1}))
		require.NoError(t, stack.store.CreateServerEntry(ctx, &models.LogEntry{Message: "n", Severity: logger.SeverityNotice, Timestamp: 1}))
		require.NoError(t, stack.store.CreateClientEntry(ctx, &models.LogEntry{Message: "e", Severity: logger.SeverityError, Timestamp: 1}))

		resp, body := stack.call(t, http.MethodGet, "/logs/totals?severity=error", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["num_events_server"])
		assert.Equal(t, float64(1), body["num_events_client"])

		resp, body = stack.call(t, http.MethodGet, "/logs/totals?severity=verbose", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Unknown severity.", body["message"])
	})

	t.Run("Entry detail", func(t *testing.T) {
		stack := newTestStack(t)
		entry := &models.LogEntry{FunctionName: "user/login", Message: "login", Severity: 5, Timestamp: 1700000000}
		require.NoError(t, stack.store.CreateServerEntry(context.Background(), entry))

		resp, body := stack.call(t, http.MethodGet, "/logs/server/1", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "user/login", body["functionName"])
		assert.Equal(t, float64(5), body["severity"])
	})

	t.Run("Missing entry", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/logs/server/999", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Log entry not found.", body["message"])
	})

	t.Run("Unknown log type", func(t *testing.T) {
		stack := newTestStack(t)
		resp, body := stack.call(t, http.MethodGet, "/logs/archive/1", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Unknown log type.", body["message"])
	})
}
