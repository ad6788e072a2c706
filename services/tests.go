package services

import (
	"context"

	"github.com/oscarbot/gateway-service/gateway"
	"github.com/oscarbot/gateway-service/models"
)

// TestService implements the tests group of gateway operations.
type TestService struct {
	maintenanceMode bool
}

// NewTestService creates the tests operations module. maintenanceMode makes
// isAlive report the service as unavailable.
func NewTestService(maintenanceMode bool) *TestService {
	return &TestService{maintenanceMode: maintenanceMode}
}

// RegisterServices contributes the tests group to the gateway registry.
func (s *TestService) RegisterServices(r *gateway.Registry) {
	r.Register("tests", "isAlive", gateway.ServiceDescriptor{Method: "GET"}, s.IsAlive)
}

// IsAlive reports the service state.
func (s *TestService) IsAlive(_ context.Context, _ *gateway.Caller, _ map[string]any) *models.ResponseEnvelope {
	envelope := models.NewEnvelope()
	if s.maintenanceMode {
		envelope.SetError(100, "Maintenance mode on")
	} else {
		envelope.SetOK(map[string]any{"message": "Server is OK"})
	}
	return envelope
}
