package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *handler) listOrders(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListOrders(owner, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}

	c.JSON(http.StatusOK, gin.H{"orders": resp})
}

func (h *handler) getOrderBySession(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	order, err := h.orders.GetBySession(c.Param("sessionID"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Чужой заказ не раскрываем даже по валидному session id.
	if order.OwnerRef != owner {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": domain.ErrOrderNotFound.Error()})
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}
