package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type setQuantityRequest struct {
	Quantity *int32 `json:"quantity"`
}

func (h *handler) getCart(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	cart, err := h.cart.GetCart(owner)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handler) setLineQuantity(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "quantity is required"})
		return
	}

	cart, err := h.cart.SetLineQuantity(owner, c.Param("productRef"), *req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handler) removeLine(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	// Удаление выражается нулевым количеством; отсутствующая позиция — no-op.
	cart, err := h.cart.SetLineQuantity(owner, c.Param("productRef"), 0)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *handler) clearCart(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	if err := h.cart.Clear(owner); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
