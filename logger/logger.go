package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oscarbot/gateway-service/models"
)

// RFC 5424 severity levels.
const (
	SeverityEmergency = iota
	SeverityAlert
	SeverityCritical
	SeverityError
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug
)

// levelTranslation maps textual severity names to the RFC 5424 numeric scale.
var levelTranslation = map[string]int{
	"emergency": SeverityEmergency,
	"alert":     SeverityAlert,
	"critical":  SeverityCritical,
	"error":     SeverityError,
	"warning":   SeverityWarning,
	"notice":    SeverityNotice,
	"info":      SeverityInfo,
	"debug":     SeverityDebug,
}

// SeverityFromName maps a textual severity name to its numeric value. The
// second return reports whether the name was recognized; unrecognized names
// are left for the caller to validate.
func SeverityFromName(name string) (int, bool) {
	severity, ok := levelTranslation[name]
	return severity, ok
}

// Context carries the structured context of one audit event. Well-known keys:
// function_name, rest_type, request_uri, referer, ip, uid, timestamp, data.
// Keys starting with '@', '%' or ':' are message placeholders and are stored
// as the entry's variables.
type Context map[string]any

// RequestContext builds the request-bound context fields from an inbound
// HTTP request.
func RequestContext(r *http.Request) Context {
	if r == nil {
		return Context{}
	}
	uri := r.URL.String()
	if r.Host != "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		uri = scheme + "://" + r.Host + r.URL.RequestURI()
	}
	return Context{
		"request_uri": uri,
		"referer":     r.Header.Get("Referer"),
		"ip":          ClientIP(r),
	}
}

// ClientIP extracts the real client IP address from forwarding headers,
// falling back to the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return trimSpaces(xff[:i])
			}
		}
		return trimSpaces(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

// AuditLogger assembles leveled audit events into persisted log rows. It is
// independent of the ambient process logging (slog): audit rows are the
// durable, queryable record of gateway activity.
type AuditLogger struct {
	store *Store

	// now is injectable for tests.
	now func() time.Time
}

// New creates an audit logger backed by the given store.
func New(store *Store) *AuditLogger {
	return &AuditLogger{
		store: store,
		now:   time.Now,
	}
}

// Store exposes the underlying log store for count/purge/load operations.
func (l *AuditLogger) Store() *Store {
	return l.store
}

// Emergency logs an event at emergency severity.
func (l *AuditLogger) Emergency(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityEmergency, message, logCtx)
}

// Alert logs an event at alert severity.
func (l *AuditLogger) Alert(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityAlert, message, logCtx)
}

// Critical logs an event at critical severity.
func (l *AuditLogger) Critical(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityCritical, message, logCtx)
}

// Error logs an event at error severity.
func (l *AuditLogger) Error(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityError, message, logCtx)
}

// Warning logs an event at warning severity.
func (l *AuditLogger) Warning(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityWarning, message, logCtx)
}

// Notice logs an event at notice severity.
func (l *AuditLogger) Notice(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityNotice, message, logCtx)
}

// Info logs an event at info severity.
func (l *AuditLogger) Info(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityInfo, message, logCtx)
}

// Debug logs an event at debug severity.
func (l *AuditLogger) Debug(ctx context.Context, message string, logCtx Context) {
	l.Log(ctx, SeverityDebug, message, logCtx)
}

// Log assembles one audit event and persists it. The rest_type context key
// routes the row: "server" to the server-side table, "client" to the
// client-side table; anything else is dropped.
func (l *AuditLogger) Log(ctx context.Context, severity int, message string, logCtx Context) {
	if logCtx == nil {
		logCtx = Context{}
	}

	// Backtraces and wrapped errors may be huge or unserializable.
	delete(logCtx, "backtrace")
	delete(logCtx, "exception")

	entry := &models.LogEntry{
		FunctionName: truncate(stringValue(logCtx["function_name"]), 90),
		Message:      message,
		Severity:     severity,
		Location:     stringValue(logCtx["request_uri"]),
		Referer:      stringValue(logCtx["referer"]),
		Hostname:     truncate(stringValue(logCtx["ip"]), 128),
		Timestamp:    l.now().Unix(),
		UID:          uintValue(logCtx["uid"]),
	}
	if ts, ok := logCtx["timestamp"].(int64); ok {
		entry.Timestamp = ts
	}

	variables, err := json.Marshal(messagePlaceholders(message, logCtx))
	if err != nil {
		slog.Warn("Failed to encode log placeholders", "error", err)
		variables = []byte("{}")
	}
	entry.Variables = variables

	if data, ok := logCtx["data"]; ok && data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			slog.Warn("Failed to encode log data payload", "error", err)
		} else {
			entry.Data = encoded
		}
	}

	switch stringValue(logCtx["rest_type"]) {
	case "server":
		if err := l.store.CreateServerEntry(ctx, entry); err != nil {
			slog.Error("Failed to persist server audit entry", "error", err, "functionName", entry.FunctionName)
		}
	case "client":
		if err := l.store.CreateClientEntry(ctx, entry); err != nil {
			slog.Error("Failed to persist client audit entry", "error", err, "functionName", entry.FunctionName)
		}
	}
}

// messagePlaceholders extracts the placeholder variables the message actually
// references: context keys starting with '@', '%' or ':' that occur in the
// message text form the substitution map stored alongside the literal message.
func messagePlaceholders(message string, logCtx Context) map[string]any {
	variables := map[string]any{}
	for key, value := range logCtx {
		if key == "" {
			continue
		}
		switch key[0] {
		case '@', '%', ':':
			if strings.Contains(message, key) {
				variables[key] = value
			}
		}
	}
	return variables
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func uintValue(v any) uint {
	switch n := v.(type) {
	case uint:
		return n
	case int:
		if n < 0 {
			return 0
		}
		return uint(n)
	case int64:
		if n < 0 {
			return 0
		}
		return uint(n)
	case float64:
		if n < 0 {
			return 0
		}
		return uint(n)
	default:
		return 0
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
