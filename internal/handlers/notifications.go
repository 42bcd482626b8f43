package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fanout/internal/events"
	"github.com/charlesng35/fanout/internal/services"
	"github.com/charlesng35/fanout/pkg/errors"
	"github.com/charlesng35/fanout/pkg/response"
)

const maxChangeRecordBytes = 64 << 10

// NotificationHandler exposes the send, feed and admin endpoints of the fan-out engine.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("NOTIFICATION_HANDLER", "notification service is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service}, nil
}

type sendBroadcastRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Body        string `json:"body" validate:"required"`
	SenderLabel string `json:"senderLabel" validate:"omitempty,max=128"`
}

type sendTargetedRequest struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Body        string   `json:"body" validate:"required"`
	SenderLabel string   `json:"senderLabel" validate:"omitempty,max=128"`
	UserIDs     []string `json:"userIds"`
}

type markReadRequest struct {
	NotificationIDs []string `json:"notificationIds" validate:"required,min=1"`
}

// Broadcast handles POST /api/notifications/broadcast.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req sendBroadcastRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, err := h.service.SendBroadcast(requestContext(c), services.SendInput{
		Title:       req.Title,
		Body:        req.Body,
		SenderLabel: req.SenderLabel,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"notificationId": id})
}

// Targeted handles POST /api/notifications/targeted.
func (h *NotificationHandler) Targeted(c *gin.Context) {
	var req sendTargetedRequest
	if !bindAndValidate(c, &req) {
		return
	}

	id, err := h.service.SendTargeted(requestContext(c), services.SendInput{
		Title:       req.Title,
		Body:        req.Body,
		SenderLabel: req.SenderLabel,
	}, req.UserIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"notificationId": id})
}

// LedgerEvent handles POST /api/notifications/events, the webhook form of the ledger change feed.
func (h *NotificationHandler) LedgerEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChangeRecordBytes))
	if err != nil {
		response.Error(c, errors.NewBadRequest("unable to read request body"))
		return
	}

	event, err := events.DecodeChange(body)
	if err != nil {
		response.Error(c, errors.NewBadRequest(err.Error()))
		return
	}

	if err := h.service.DispatchLedgerEvent(requestContext(c), event); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// Redispatch handles POST /api/notifications/:id/redispatch.
func (h *NotificationHandler) Redispatch(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	recipients, err := h.service.Redispatch(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"notificationId": id, "recipients": recipients})
}

// Delete handles DELETE /api/notifications/:id.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := h.service.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// List returns the caller's feed, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, offset := services.NormalisePage(parseIntQuery(c, "limit", 0), parseIntQuery(c, "offset", 0))
	items, total, err := h.service.List(requestContext(c), userID, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []services.FeedItem{}
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead handles POST /api/notifications/mark-read. Already-read entries are left untouched.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req markReadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.service.MarkRead(requestContext(c), userID, req.NotificationIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
