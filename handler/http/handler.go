package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"skuflow/src/core/catalog"
	"skuflow/src/core/ingest"
	"skuflow/src/core/webhook"
	"skuflow/src/infrastructure/job"
)

type Handler struct {
	products      catalog.Store
	subscriptions webhook.Registry
	jobs          job.Registry
	uploads       *ingest.Service
}

func NewHandler(products catalog.Store, subscriptions webhook.Registry, jobs job.Registry, uploads *ingest.Service) *Handler {
	return &Handler{
		products:      products,
		subscriptions: subscriptions,
		jobs:          jobs,
		uploads:       uploads,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// Product routes
	api.GET("/products", h.ListProducts)
	api.POST("/products", h.CreateProduct)
	api.PUT("/products/:sku", h.UpdateProduct)
	api.DELETE("/products/:sku", h.DeleteProduct)
	api.DELETE("/products", h.DeleteAllProducts)

	// Upload routes
	api.POST("/upload", h.Upload)
	api.GET("/upload/:task_id", h.UploadStatus)

	// Webhook routes
	api.GET("/webhooks", h.ListWebhooks)
	api.POST("/webhooks", h.CreateWebhook)
	api.PUT("/webhooks/:id", h.UpdateWebhook)
	api.DELETE("/webhooks/:id", h.DeleteWebhook)

	// System routes
	api.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, webhook.ErrNotFound),
		errors.Is(err, job.ErrJobNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrSKUExists):
		code = "CONFLICT"
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, webhook.ErrUnknownEventType):
		code = "VALIDATION_ERROR"
		status = http.StatusBadRequest
	case status == http.StatusBadRequest:
		code = "VALIDATION_ERROR"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func errInvalidParam(name string) error {
	return fmt.Errorf("invalid %s parameter", name)
}

// CheckHealth godoc
// @Summary Liveness probe
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
