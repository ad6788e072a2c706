package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/services"
)

// maxBodyBytes caps the request body size for gateway calls.
const maxBodyBytes = 1 << 20

// GatewayHandler is the HTTP entry point for gateway service calls: it builds
// the gateway request from the raw HTTP request, resolves the caller session,
// runs the access gate and dispatches the operation.
type GatewayHandler struct {
	gate       *gateway.Gate
	dispatcher *gateway.Dispatcher
	sessions   services.SessionManager
}

// NewGatewayHandler creates the gateway HTTP handler.
func NewGatewayHandler(gate *gateway.Gate, dispatcher *gateway.Dispatcher, sessions services.SessionManager) *GatewayHandler {
	return &GatewayHandler{gate: gate, dispatcher: dispatcher, sessions: sessions}
}

// Handle serves ANY /gateway/{group}/{service}.
func (h *GatewayHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed request (missing data).")
		return
	}

	token, tokenPresent := headerValue(r, gateway.TokenHeader)

	req := &gateway.Request{
		Group:        r.PathValue("group"),
		Operation:    r.PathValue("service"),
		Method:       r.Method,
		Token:        token,
		TokenPresent: tokenPresent,
		Body:         body,
		ClientIP:     logger.ClientIP(r),
		RequestURI:   requestURI(r),
		Referer:      r.Header.Get("Referer"),
		Caller:       h.resolveCaller(r),
	}

	decision, data := h.gate.Evaluate(r.Context(), req)
	if !decision.Allowed {
		if decision.Reason == gateway.MethodNotAllowed && decision.AllowedMethod != "" {
			w.Header().Set("Allow", decision.AllowedMethod)
		}
		writeJSONError(w, decision.Status, decision.Message)
		return
	}

	envelope, err := h.dispatcher.Dispatch(r.Context(), req, data)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope)
}

// resolveCaller turns the request's session cookie (or X-Session-Id header)
// into a caller identity. Any resolution failure yields an anonymous caller;
// the access gate decides whether that matters.
func (h *GatewayHandler) resolveCaller(r *http.Request) *gateway.Caller {
	sessionID := ""
	if cookie, err := r.Cookie(services.SessionName); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-Id")
	}
	if sessionID == "" {
		return &gateway.Caller{Anonymous: true}
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to resolve session", "error", err)
		return &gateway.Caller{Anonymous: true}
	}
	if session == nil {
		return &gateway.Caller{Anonymous: true}
	}

	return &gateway.Caller{
		Name:      session.Username,
		UID:       session.UID,
		SessionID: session.ID,
		Roles:     session.Roles,
	}
}

func headerValue(r *http.Request, name string) (string, bool) {
	values, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func requestURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}
