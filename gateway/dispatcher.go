package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oscarbot/gateway-service/logger"
	"github.com/oscarbot/gateway-service/models"
)

// DispatchError is an operation failure surfaced to the HTTP layer as a bad
// request with the failure message.
type DispatchError struct {
	Route   string
	Message string
}

func (e *DispatchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Error processing service %s.", e.Route)
}

// Dispatcher routes an authorized gateway request to its operation handler
// and records the outcome in the audit trail.
type Dispatcher struct {
	registry    *Registry
	audit       *logger.AuditLogger
	tracing     bool
	trackErrors bool
}

// NewDispatcher creates a dispatcher. tracing enables audit logging of every
// call outcome; trackErrors enables audit logging of failed envelopes only.
func NewDispatcher(registry *Registry, audit *logger.AuditLogger, tracing, trackErrors bool) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		audit:       audit,
		tracing:     tracing,
		trackErrors: trackErrors,
	}
}

// Dispatch invokes the named operation with the decoded request body. It is
// only called after the access gate allowed the request. A handler that
// panics or produces no envelope yields a DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, data map[string]any) (*models.ResponseEnvelope, error) {
	_, handler, found := d.registry.Lookup(req.Group, req.Operation)
	if !found {
		// The gate guarantees the lookup succeeds; treat a miss as an
		// operation failure rather than a panic.
		return nil, &DispatchError{Route: req.Route()}
	}

	envelope, failure := d.invoke(ctx, req, handler, data)
	if envelope == nil {
		dispatchErr := &DispatchError{Route: req.Route(), Message: failure}
		slog.Error("Gateway operation failed", "route", req.Route(), "error", dispatchErr.Error())
		return nil, dispatchErr
	}

	if d.tracing || (d.trackErrors && !envelope.Status) {
		d.auditOutcome(ctx, req, data, envelope)
	}

	return envelope, nil
}

// invoke runs the handler, converting a panic into a failure message.
func (d *Dispatcher) invoke(ctx context.Context, req *Request, handler Handler, data map[string]any) (envelope *models.ResponseEnvelope, failure string) {
	defer func() {
		if r := recover(); r != nil {
			envelope = nil
			failure = fmt.Sprintf("%v", r)
		}
	}()
	return handler(ctx, req.Caller, data), ""
}

// auditOutcome writes the single audit entry for one dispatched call:
// notice severity for a successful envelope, error severity otherwise, with
// the request and response payloads normalized for storage.
func (d *Dispatcher) auditOutcome(ctx context.Context, req *Request, data map[string]any, envelope *models.ResponseEnvelope) {
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
		"in":  data,
		"out": envelopeMap(envelope),
	}

	d.audit.Log(ctx, severity, "@name service: @status.", logger.Context{
		"function_name": req.Route(),
		"rest_type":     "server",
		"request_uri":   req.RequestURI,
		"referer":       req.Referer,
		"ip":            req.ClientIP,
		"uid":           callerUID(req.Caller),
		"data":          logger.FormatValue(logData),

		"@name":   req.Route(),
		"@status": status,
	})
}

func envelopeMap(envelope *models.ResponseEnvelope) map[string]any {
	return map[string]any{
		"status": envelope.Status,
		"error": map[string]any{
			"code":    envelope.Error.Code,
			"message": envelope.Error.Message,
		},
		"response": envelope.Response,
	}
}
