package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oscarbot/gateway-service/logger"
)

// DenyReason is the closed set of access-denial causes.
type DenyReason string

const (
	TokenNotConfigured        DenyReason = "token_not_configured"
	TokenMissing              DenyReason = "token_missing"
	TokenMismatch             DenyReason = "token_mismatch"
	ServiceUnknown            DenyReason = "service_unknown"
	ServiceForbiddenAnonymous DenyReason = "service_forbidden_anonymous"
	MethodNotAllowed          DenyReason = "method_not_allowed"
	MalformedRequest          DenyReason = "malformed_request"
	CredentialsMissing        DenyReason = "credentials_missing"
	CredentialsMismatch       DenyReason = "credentials_mismatch"
)

// TokenHeader is the gateway access token header.
const TokenHeader = "X-Backend-Gateway-Token"

// AccessDecision is the outcome of evaluating one gateway request.
type AccessDecision struct {
	Allowed bool

	// Set only on denial.
	Reason  DenyReason
	Status  int
	Message string

	// AllowedMethod carries the single accepted verb when the denial is
	// MethodNotAllowed, for the Allow response header.
	AllowedMethod string
}

func allow() AccessDecision {
	return AccessDecision{Allowed: true}
}

func deny(reason DenyReason, status int, message string) AccessDecision {
	return AccessDecision{Reason: reason, Status: status, Message: message}
}

// Request is one inbound gateway call, consumed by the gate and dispatcher
// and discarded when the call completes.
type Request struct {
	Group     string
	Operation string
	Method    string

	// Token is the value of the gateway token header; TokenPresent
	// distinguishes an absent header from an empty one.
	Token        string
	TokenPresent bool

	Body []byte

	ClientIP   string
	RequestURI string
	Referer    string

	Caller *Caller
}

// Route returns the group/operation service route.
func (r *Request) Route() string {
	return r.Group + "/" + r.Operation
}

// Gate validates inbound gateway requests against the configured token, the
// service registry and the caller identity.
type Gate struct {
	registry *Registry
	token    string
	audit    *logger.AuditLogger
}

// NewGate creates an access gate. The token is the configured gateway access
// token; an empty token denies every request.
func NewGate(registry *Registry, token string, audit *logger.AuditLogger) *Gate {
	return &Gate{registry: registry, token: token, audit: audit}
}

// Evaluate runs the access checks in strict order; the first failing check
// wins and no further checks run. On success it also returns the decoded
// request body for the dispatcher. Every denial is audited at error severity
// before it is returned.
func (g *Gate) Evaluate(ctx context.Context, req *Request) (AccessDecision, map[string]any) {
	if g.token == "" {
		g.auditDeny(ctx, req, "No token defined")
		return deny(TokenNotConfigured, http.StatusBadRequest, "Token not defined."), nil
	}

	if !req.TokenPresent {
		g.auditDeny(ctx, req, "No send token")
		return deny(TokenMissing, http.StatusForbidden, "Access denied."), nil
	}

	if req.Token != g.token {
		// The attempted and configured token values stay out of the log.
		g.auditDeny(ctx, req, "Bad token")
		return deny(TokenMismatch, http.StatusForbidden, "Access denied."), nil
	}

	var data map[string]any
	if len(req.Body) > 0 {
		// A parse failure leaves data nil; the params check below decides
		// whether that matters.
		_ = json.Unmarshal(req.Body, &data)
	}

	descriptor, _, found := g.registry.Lookup(req.Group, req.Operation)
	if !found {
		g.auditDeny(ctx, req, "Unknown service")
		return deny(ServiceUnknown, http.StatusNotFound, "Not found (unknown service)."), nil
	}

	if req.Caller.IsAnonymous() && descriptor.Private {
		g.auditDeny(ctx, req, "Access denied")
		return deny(ServiceForbiddenAnonymous, http.StatusForbidden, "Access denied (only register users)."), nil
	}

	if req.Method != descriptor.Method {
		g.auditDeny(ctx, req, "Method not allowed: "+req.Method)
		decision := deny(MethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed.")
		decision.AllowedMethod = descriptor.Method
		return decision, nil
	}

	if len(data) == 0 && descriptor.RequiresParams {
		g.auditDeny(ctx, req, "Malformed request (missing data)")
		return deny(MalformedRequest, http.StatusBadRequest, "Malformed request (missing data)."), nil
	}

	if !descriptor.Private {
		return allow(), data
	}

	// Private operations must name the caller's own account in the body;
	// privileged self-service calls can never act on another identity.
	username, _ := data["username"].(string)
	if username == "" {
		g.auditDeny(ctx, req, "Access denied (missing credentials)")
		return deny(CredentialsMissing, http.StatusForbidden, "Access denied (missing credentials)."), nil
	}
	if username != req.Caller.AccountName() {
		g.auditDeny(ctx, req, "Access denied (invalid credentials)")
		return deny(CredentialsMismatch, http.StatusForbidden, "Access denied (invalid credentials)."), nil
	}

	return allow(), data
}

// auditDeny records one denial at error severity: client IP, attempted
// service route and a short denial message, never the token value.
func (g *Gate) auditDeny(ctx context.Context, req *Request, message string) {
	var requestData map[string]any
	if len(req.Body) > 0 {
		_ = json.Unmarshal(req.Body, &requestData)
	}

	payload := map[string]any{
		"ip":           req.ClientIP,
		"service_name": req.Route(),
		"message":      message,
		"request":      requestData,
	}

	g.audit.Error(ctx, message, logger.Context{
		"function_name": req.Route(),
		"rest_type":     "server",
		"request_uri":   req.RequestURI,
		"referer":       req.Referer,
		"ip":            req.ClientIP,
		"uid":           callerUID(req.Caller),
		"data":          logger.FormatValue(payload),
	})
}

func callerUID(c *Caller) uint {
	if c == nil {
		return 0
	}
	return c.UID
}
