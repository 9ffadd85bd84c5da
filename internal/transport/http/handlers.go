// internal/transport/http/handlers.go
package http

import (
	"intake-service/internal/service"
	"intake-service/internal/sse"
)

type Handler struct {
	intakeService *service.IntakeService
	broker        *sse.Broker
}

func NewHandler(intakeService *service.IntakeService, broker *sse.Broker) *Handler {
	return &Handler{intakeService: intakeService, broker: broker}
}

func (h *Handler) GetReferralHandler() *ReferralHandler {
	return NewReferralHandler(h.intakeService, h.broker)
}
