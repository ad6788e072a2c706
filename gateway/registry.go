package gateway

import (
	"context"

	"github.com/oscarbot/gateway-service/models"
)

// ServiceDescriptor is the static registry entry for one gateway operation.
type ServiceDescriptor struct {
	// Private operations require the caller to be authenticated and to
	// name itself in the request body.
	Private bool

	// RequiresParams rejects requests with an empty or unparsable body.
	RequiresParams bool

	// Method is the single HTTP verb the operation accepts.
	Method string
}

// Caller identifies the authenticated origin of a gateway request. A nil
// caller or one with Anonymous set is an unauthenticated request.
type Caller struct {
	Name      string
	UID       uint
	SessionID string
	Roles     []string
	Anonymous bool
}

// IsAnonymous reports whether the caller is unauthenticated.
func (c *Caller) IsAnonymous() bool {
	return c == nil || c.Anonymous
}

// AccountName returns the caller's account name, empty for anonymous callers.
func (c *Caller) AccountName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

// Handler is one operation implementation: it receives the caller identity
// and the decoded request body and returns a response envelope.
type Handler func(ctx context.Context, caller *Caller, data map[string]any) *models.ResponseEnvelope

type registration struct {
	descriptor ServiceDescriptor
	handler    Handler
}

// Registry maps (group, operation name) to a descriptor and handler. It is
// built once at startup from the contributing service modules and is
// read-only afterwards; lookups need no locking.
type Registry struct {
	entries map[string]map[string]registration
}

// Module contributes a group of operations to the registry. Each service
// module registers its own (group, name) entries at startup; the dispatch
// surface is the composition of all modules.
type Module interface {
	RegisterServices(r *Registry)
}

// NewRegistry builds a registry from the given service modules.
func NewRegistry(modules ...Module) *Registry {
	r := &Registry{entries: map[string]map[string]registration{}}
	for _, m := range modules {
		m.RegisterServices(r)
	}
	return r
}

// Register adds one operation. Later registrations of the same (group, name)
// replace earlier ones.
func (r *Registry) Register(group, name string, descriptor ServiceDescriptor, handler Handler) {
	if r.entries[group] == nil {
		r.entries[group] = map[string]registration{}
	}
	r.entries[group][name] = registration{descriptor: descriptor, handler: handler}
}

// Lookup finds the descriptor and handler for (group, name). The third
// return is false for unknown services.
func (r *Registry) Lookup(group, name string) (ServiceDescriptor, Handler, bool) {
	if name == "" {
		return ServiceDescriptor{}, nil, false
	}
	reg, ok := r.entries[group][name]
	if !ok {
		return ServiceDescriptor{}, nil, false
	}
	return reg.descriptor, reg.handler, true
}
