package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fanout/internal/services"
	"github.com/charlesng35/fanout/pkg/errors"
	"github.com/charlesng35/fanout/pkg/response"
)

// SubscriptionHandler lets recipients register and remove their own push endpoints.
type SubscriptionHandler struct {
	registry *services.SubscriptionRegistry
}

// NewSubscriptionHandler constructs a subscription handler.
func NewSubscriptionHandler(registry *services.SubscriptionRegistry) (*SubscriptionHandler, error) {
	if registry == nil {
		return nil, errors.New("SUBSCRIPTION_HANDLER", "subscription registry is required", http.StatusInternalServerError)
	}
	return &SubscriptionHandler{registry: registry}, nil
}

type registerSubscriptionRequest struct {
	Transport          string          `json:"transport" validate:"required,oneof=webpush mobile-token relay-service"`
	EndpointDescriptor json.RawMessage `json:"endpointDescriptor" validate:"required"`
}

// Register handles POST /api/subscriptions. Registering the same endpoint twice returns the
// existing subscription id.
func (h *SubscriptionHandler) Register(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req registerSubscriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, created, err := h.registry.Upsert(requestContext(c), userID, req.Transport, req.EndpointDescriptor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"subscriptionId": id, "created": created})
}

// List handles GET /api/subscriptions.
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	subs, err := h.registry.ListFor(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, subs)
}

// Delete handles DELETE /api/subscriptions/:id. Only the owner may remove a subscription.
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.registry.Remove(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
