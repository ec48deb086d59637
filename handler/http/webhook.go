package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skuflow/src/core/webhook"
)

type webhookRequest struct {
	URL       string `json:"url" binding:"required,url"`
	EventType string `json:"event_type" binding:"required"`
	IsActive  *bool  `json:"is_active"`
}

func (r webhookRequest) subscription() (webhook.Subscription, error) {
	if !webhook.KnownEventType(r.EventType) {
		return webhook.Subscription{}, webhook.ErrUnknownEventType
	}
	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}
	return webhook.Subscription{
		URL:       r.URL,
		EventType: r.EventType,
		IsActive:  isActive,
	}, nil
}

// ListWebhooks godoc
// @Summary List webhook subscriptions
// @Tags webhooks
// @Produce json
// @Success 200 {array} webhook.Subscription
// @Router /webhooks [get]
func (h *Handler) ListWebhooks(c *gin.Context) {
	subs, err := h.subscriptions.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, subs)
}

// CreateWebhook godoc
// @Summary Register a webhook subscription
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 201 {object} webhook.Subscription
// @Failure 400 {object} ErrorResponse
// @Router /webhooks [post]
func (h *Handler) CreateWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	sub, err := req.subscription()
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.subscriptions.Create(c.Request.Context(), &sub); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusCreated, sub)
}

// UpdateWebhook godoc
// @Summary Update a webhook subscription
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} webhook.Subscription
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id} [put]
func (h *Handler) UpdateWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, errInvalidParam("id"))
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	sub, err := req.subscription()
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	updated, err := h.subscriptions.Update(c.Request.Context(), id, sub)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, updated)
}

// DeleteWebhook godoc
// @Summary Delete a webhook subscription
// @Tags webhooks
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/{id} [delete]
func (h *Handler) DeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, errInvalidParam("id"))
		return
	}

	if err := h.subscriptions.Delete(c.Request.Context(), id); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
