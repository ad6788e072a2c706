package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/models"
)

// API key placement modes.
const (
	AuthQueryParam = "get"
	AuthHeader     = "header"
	AuthBasic      = "basic"
)

// Parameter transport modes.
const (
	ParamsQuery    = "get"
	ParamsBodyJSON = "body_json"
)

// Config describes one remote gateway endpoint and how to talk to it.
type Config struct {
	// BaseURL is the remote service root; endpoint paths are appended to it.
	BaseURL string

	// APIKey authenticates outbound calls; APIKeyType selects where it
	// travels: "get" as an api_key query parameter, "header" as the
	// gateway token header, "basic" as user:pass basic auth.
	APIKey     string
	APIKeyType string

	// SendParamsType selects how call parameters travel on non-GET
	// requests: "get" as query parameters, "body_json" as a JSON body.
	SendParamsType string

	// SkipSSL disables certificate verification, for self-signed staging
	// endpoints only.
	SkipSSL bool

	// ProxyServer routes calls through an HTTP proxy when non-empty.
	ProxyServer string

	// Tracing audits every outbound call; TrackErrors audits only the
	// calls whose envelope reports failure.
	Tracing     bool
	TrackErrors bool
}

// RestClient issues calls to a remote gateway and decodes its response
// envelopes. Each call is a single attempt; callers decide about retries.
type RestClient struct {
	config     Config
	httpClient *http.Client
	audit      *logger.AuditLogger

	mu        sync.Mutex
	lastError string
}

// New creates a REST client for the configured remote endpoint.
func New(config Config, audit *logger.AuditLogger) (*RestClient, error) {
	transport := &http.Transport{}
	if config.SkipSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if config.ProxyServer != "" {
		proxyURL, err := url.Parse(config.ProxyServer)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy server %q: %w", config.ProxyServer, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &RestClient{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		audit: audit,
	}, nil
}

// LastError returns the message of the most recent failed call, empty when
// the last call succeeded.
func (c *RestClient) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *RestClient) setLastError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = message
}

// Get issues a GET call to the endpoint.
func (c *RestClient) Get(ctx context.Context, endpoint string, params map[string]any) (*models.ResponseEnvelope, error) {
	return c.Call(ctx, http.MethodGet, endpoint, params)
}

// Post issues a POST call to the endpoint.
func (c *RestClient) Post(ctx context.Context, endpoint string, params map[string]any) (*models.ResponseEnvelope, error) {
	return c.Call(ctx, http.MethodPost, endpoint, params)
}

// Put issues a PUT call to the endpoint.
func (c *RestClient) Put(ctx context.Context, endpoint string, params map[string]any) (*models.ResponseEnvelope, error) {
	return c.Call(ctx, http.MethodPut, endpoint, params)
}

// Delete issues a DELETE call to the endpoint.
func (c *RestClient) Delete(ctx context.Context, endpoint string, params map[string]any) (*models.ResponseEnvelope, error) {
	return c.Call(ctx, http.MethodDelete, endpoint, params)
}

// Call issues one request and decodes the response envelope. Transport and
// decode failures return an error with a nil envelope; an envelope reporting
// failure, or a body carrying a non-empty errors list, is returned as a
// failed envelope with its message recorded as the last error.
func (c *RestClient) Call(ctx context.Context, method, endpoint string, params map[string]any) (*models.ResponseEnvelope, error) {
	c.setLastError("")

	req, err := c.buildRequest(ctx, method, endpoint, params)
	if err != nil {
		c.setLastError(err.Error())
		c.auditFailure(ctx, endpoint, params, err.Error())
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setLastError(err.Error())
		c.auditFailure(ctx, endpoint, params, err.Error())
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.setLastError(err.Error())
		c.auditFailure(ctx, endpoint, params, err.Error())
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	var envelope models.ResponseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		message := fmt.Sprintf("invalid response from %s (status %d)", endpoint, resp.StatusCode)
		c.setLastError(message)
		c.auditFailure(ctx, endpoint, params, message)
		return nil, fmt.Errorf("%s: %w", message, err)
	}

	// A remote reporting failures through a top-level errors list wins over
	// the envelope status.
	if message := firstReportedError(body); message != "" {
		envelope.SetError(envelope.Error.Code, message)
	}
	if !envelope.Status {
		c.setLastError(envelope.Error.Message)
	}
	if c.config.Tracing || (c.config.TrackErrors && !envelope.Status) {
		c.auditOutcome(ctx, endpoint, params, &envelope)
	}

	return &envelope, nil
}

// buildRequest assembles the outbound request: endpoint URL, parameter
// placement, API key placement.
func (c *RestClient) buildRequest(ctx context.Context, method, endpoint string, params map[string]any) (*http.Request, error) {
	target, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	var body *bytes.Buffer
	query := target.Query()

	sendInQuery := method == http.MethodGet || c.config.SendParamsType == ParamsQuery
	if sendInQuery {
		for key, value := range params {
			query.Set(key, fmt.Sprintf("%v", value))
		}
	} else if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameters: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	if c.config.APIKeyType == AuthQueryParam {
		query.Set("api_key", c.config.APIKey)
	}
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = body
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	switch c.config.APIKeyType {
	case AuthHeader:
		req.Header.Set(gateway.TokenHeader, c.config.APIKey)
	case AuthBasic:
		user, pass, found := strings.Cut(c.config.APIKey, ":")
		if !found {
			return nil, fmt.Errorf("basic auth api key must be user:pass")
		}
		req.SetBasicAuth(user, pass)
	}

	return req, nil
}

// auditOutcome records one completed outbound call in the client-side table.
func (c *RestClient) auditOutcome(ctx context.Context, endpoint string, params map[string]any, envelope *models.ResponseEnvelope) {
	var severity int
	var status string
	if envelope.Status {
		severity = logger.SeverityNotice
		status = "successfully"
	} else {
		severity = logger.SeverityError
		status = envelope.Error.Message
		if status == "" {
			status = "with errors"
		}
	}

	logData := map[string]any{
		"in": params,
		"out": map[string]any{
			"status": envelope.Status,
			"error": map[string]any{
				"code":    envelope.Error.Code,
				"message": envelope.Error.Message,
			},
			"response": envelope.Response,
		},
	}

	c.audit.Log(ctx, severity, "@name service: @status.", logger.Context{
		"function_name": endpoint,
		"rest_type":     "client",
		"request_uri":   c.config.BaseURL,
		"data":          logger.FormatValue(logData),

		"@name":   endpoint,
		"@status": status,
	})
}

// firstReportedError extracts the leading entry of a top-level errors list,
// empty when the body carries none.
func firstReportedError(body []byte) string {
	var payload struct {
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", payload.Errors[0])
}

// auditFailure records a call that never produced an envelope. Unlike result
// tracking, these entries are written regardless of the tracing flags.
func (c *RestClient) auditFailure(ctx context.Context, endpoint string, params map[string]any, message string) {
	c.audit.Error(ctx, message, logger.Context{
		"function_name": endpoint,
		"rest_type":     "client",
		"request_uri":   c.config.BaseURL,
		"data":          logger.FormatValue(map[string]any{"in": params, "message": message}),
	})
}
