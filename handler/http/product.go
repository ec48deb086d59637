package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"skuflow/src/core/catalog"
)

type createProductRequest struct {
	SKU         string `json:"sku" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

// ListProducts godoc
// @Summary List catalog products
// @Tags products
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Param q query string false "Filter matched against sku, name and description"
// @Success 200 {object} map[string]interface{}
// @Router /products [get]
func (h *Handler) ListProducts(c *gin.Context) {
	limit := 100
	offset := 0

	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			sendError(c, http.StatusBadRequest, errInvalidParam("limit"))
			return
		}
		limit = parsed
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		parsed, err := strconv.Atoi(offsetParam)
		if err != nil || parsed < 0 {
			sendError(c, http.StatusBadRequest, errInvalidParam("offset"))
			return
		}
		offset = parsed
	}

	products, err := h.products.List(c.Request.Context(), catalog.ListOptions{
		Limit:  limit,
		Offset: offset,
		Query:  c.Query("q"),
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{
		"products": products,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
		},
	})
}

// CreateProduct godoc
// @Summary Create a product, rejecting duplicate SKUs
// @Tags products
// @Accept json
// @Produce json
// @Success 201 {object} catalog.Product
// @Failure 409 {object} ErrorResponse
// @Router /products [post]
func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	product := &catalog.Product{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    isActive,
	}
	if err := h.products.Create(c.Request.Context(), product); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, product)
}

// UpdateProduct godoc
// @Summary Partially update a product by SKU
// @Tags products
// @Accept json
// @Produce json
// @Success 200 {object} catalog.Product
// @Failure 404 {object} ErrorResponse
// @Router /products/{sku} [put]
func (h *Handler) UpdateProduct(c *gin.Context) {
	var upd catalog.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	product, err := h.products.Update(c.Request.Context(), c.Param("sku"), upd)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, product)
}

// DeleteProduct godoc
// @Summary Delete a product by SKU
// @Tags products
// @Success 204 "No Content"
// @Failure 404 {object} ErrorResponse
// @Router /products/{sku} [delete]
func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("sku")); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllProducts godoc
// @Summary Delete the whole catalog
// @Tags products
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /products [delete]
func (h *Handler) DeleteAllProducts(c *gin.Context) {
	deleted, err := h.products.DeleteAll(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, gin.H{"deleted": deleted})
}
