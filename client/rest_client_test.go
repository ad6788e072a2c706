package client

import (
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
)

func newTestClient(t *testing.T, config Config, handler http.HandlerFunc) (*RestClient, *logger.Store) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := logger.NewStore(database.SetupSQLiteTestDB(t))
	config.BaseURL = server.URL
	restClient, err := New(config, logger.New(store))
	require.NoError(t, err)
	return restClient, store
}

func envelopeResponse(status bool, code int, message string, response map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		envelope := models.NewEnvelope()
		if status {
			envelope.SetOK(response)
		} else {
			envelope.SetError(code, message)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(envelope)
	}
}

func TestRestClient_Call(t *testing.T) {
	ctx := context.Background()

	t.Run("GET sends params and api key as query parameters", func(t *testing.T) {
		var gotQuery map[string][]string
		restClient, _ := newTestClient(t, Config{
			APIKey:     "the-key",
			APIKeyType: AuthQueryParam,
		}, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			envelopeResponse(true, 0, "", map[string]any{"message": "ok"})(w, r)
		})

		envelope, err := restClient.Get(ctx, "tests/isAlive", map[string]any{"verbose": true})
		require.NoError(t, err)
		assert.True(t, envelope.Status)
		assert.Equal(t, "ok", envelope.Response["message"])
		assert.Equal(t, []string{"the-key"}, gotQuery["api_key"])
		assert.Equal(t, []string{"true"}, gotQuery["verbose"])
		assert.Empty(t, restClient.LastError())
	})

	t.Run("POST sends params as a JSON body with the token header", func(t *testing.T) {
		var gotBody map[string]any
		var gotToken string
		var gotContentType string
		restClient, _ := newTestClient(t, Config{
			APIKey:         "the-key",
			APIKeyType:     AuthHeader,
			SendParamsType: ParamsBodyJSON,
		}, func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get(gateway.TokenHeader)
			gotContentType = r.Header.Get("Content-Type")
			json.NewDecoder(r.Body).Decode(&gotBody)
			envelopeResponse(true, 0, "", map[string]any{"message": "ok"})(w, r)
		})

		envelope, err := restClient.Post(ctx, "user/login", map[string]any{"username": "bob"})
		require.NoError(t, err)
		assert.True(t, envelope.Status)
		assert.Equal(t, "the-key", gotToken)
		assert.Equal(t, "application/json", gotContentType)
		assert.Equal(t, "bob", gotBody["username"])
	})

	t.Run("Basic auth splits the api key", func(t *testing.T) {
		var gotUser, gotPass string
		restClient, _ := newTestClient(t, Config{
			APIKey:     "user:pass",
			APIKeyType: AuthBasic,
		}, func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotPass, _ = r.BasicAuth()
			envelopeResponse(true, 0, "", nil)(w, r)
		})

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)
		assert.Equal(t, "user", gotUser)
		assert.Equal(t, "pass", gotPass)
	})

	t.Run("Malformed basic auth key fails before sending", func(t *testing.T) {
		restClient, _ := newTestClient(t, Config{
			APIKey:     "no-separator",
			APIKeyType: AuthBasic,
		}, envelopeResponse(true, 0, "", nil))

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		assert.Error(t, err)
		assert.NotEmpty(t, restClient.LastError())
	})

	t.Run("Errors list overrides the envelope status", func(t *testing.T) {
		restClient, _ := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":true,"error":{"code":0,"message":""},"response":{},"errors":["remote exploded"]}`))
		})

		envelope, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)
		assert.False(t, envelope.Status)
		assert.Equal(t, "remote exploded", envelope.Error.Message)
		assert.Equal(t, "remote exploded", restClient.LastError())
	})

	t.Run("Empty errors list leaves the envelope alone", func(t *testing.T) {
		restClient, _ := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":true,"error":{"code":0,"message":""},"response":{"message":"ok"},"errors":[]}`))
		})

		envelope, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)
		assert.True(t, envelope.Status)
		assert.Empty(t, restClient.LastError())
	})

	t.Run("Failed envelope records the last error", func(t *testing.T) {
		restClient, _ := newTestClient(t, Config{},
			envelopeResponse(false, -10, "Wrong username and/or password.", nil))

		envelope, err := restClient.Post(ctx, "user/login", map[string]any{"username": "bob"})
		require.NoError(t, err)
		assert.False(t, envelope.Status)
		assert.Equal(t, -10, envelope.Error.Code)
		assert.Equal(t, "Wrong username and/or password.", restClient.LastError())
	})

	t.Run("Last error resets on the next call", func(t *testing.T) {
		fail := true
		restClient, _ := newTestClient(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
			if fail {
				envelopeResponse(false, -10, "boom", nil)(w, r)
			} else {
				envelopeResponse(true, 0, "", nil)(w, r)
			}
		})

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)
		assert.Equal(t, "boom", restClient.LastError())

		fail = false
		_, err = restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)
		assert.Empty(t, restClient.LastError())
	})

	t.Run("Non-envelope response is an error", func(t *testing.T) {
		restClient, _ := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		})

		envelope, err := restClient.Get(ctx, "tests/isAlive", nil)
		assert.Nil(t, envelope)
		assert.Error(t, err)
		assert.NotEmpty(t, restClient.LastError())
	})

	t.Run("Error tracking audits failed calls into the client table", func(t *testing.T) {
		restClient, store := newTestClient(t, Config{TrackErrors: true},
			envelopeResponse(false, -20, "Wrong username.", nil))

		_, err := restClient.Post(ctx, "user/resetPass", map[string]any{"username": "ghost"})
		require.NoError(t, err)

		entry, loadErr := store.LoadClientEntry(ctx, 1)
		require.NoError(t, loadErr)
		assert.Equal(t, logger.SeverityError, entry.Severity)
		assert.Equal(t, "user/resetPass", entry.FunctionName)
		assert.Contains(t, string(entry.Variables), "Wrong username.")

		serverTotal, countErr := store.CountServer(ctx)
		require.NoError(t, countErr)
		assert.Zero(t, serverTotal)
	})

	t.Run("Tracing audits successful calls", func(t *testing.T) {
		restClient, store := newTestClient(t, Config{Tracing: true},
			envelopeResponse(true, 0, "", map[string]any{"message": "ok"}))

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)

		entry, loadErr := store.LoadClientEntry(ctx, 1)
		require.NoError(t, loadErr)
		assert.Equal(t, logger.SeverityNotice, entry.Severity)
	})

	t.Run("Without tracking nothing is audited", func(t *testing.T) {
		restClient, store := newTestClient(t, Config{},
			envelopeResponse(false, -10, "boom", nil))

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.NoError(t, err)

		total, countErr := store.CountClient(ctx)
		require.NoError(t, countErr)
		assert.Zero(t, total)
	})

	t.Run("Transport failures are audited even without tracking", func(t *testing.T) {
		store := logger.NewStore(database.SetupSQLiteTestDB(t))
		restClient, err := New(Config{BaseURL: "http://127.0.0.1:1"}, logger.New(store))
		require.NoError(t, err)

		_, err = restClient.Get(ctx, "tests/isAlive", nil)
		require.Error(t, err)
		assert.NotEmpty(t, restClient.LastError())

		total, countErr := store.CountClient(ctx)
		require.NoError(t, countErr)
		assert.Equal(t, int64(1), total)
	})

	t.Run("Decode failures are audited even without tracking", func(t *testing.T) {
		restClient, store := newTestClient(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		})

		_, err := restClient.Get(ctx, "tests/isAlive", nil)
		require.Error(t, err)

		entry, loadErr := store.LoadClientEntry(ctx, 1)
		require.NoError(t, loadErr)
		assert.Equal(t, logger.SeverityError, entry.Severity)
		assert.Equal(t, "tests/isAlive", entry.FunctionName)
	})

	t.Run("Invalid proxy configuration fails construction", func(t *testing.T) {
		store := logger.NewStore(database.SetupSQLiteTestDB(t))
		_, err := New(Config{ProxyServer: "://bad"}, logger.New(store))
		assert.Error(t, err)
	})
}
