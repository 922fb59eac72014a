package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type providerCallbackRequest struct {
	SessionID  string `json:"session_id"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

func (h *handler) beginCheckout(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	attempt, err := h.checkout.BeginCheckout(owner)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAttemptResponse(attempt))
}

func (h *handler) currentAttempt(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	attempt, found := h.checkout.Attempt(owner)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active checkout attempt"})
		return
	}

	c.JSON(http.StatusOK, toAttemptResponse(attempt))
}

func (h *handler) cancelCheckout(c *gin.Context) {
	owner, ok := ownerRef(c)
	if !ok {
		writeError(c, domain.ErrUnauthorized)
		return
	}

	sessionID := c.Param("sessionID")
	// Чужую сессию не отменяем и не подтверждаем её существование.
	attempt, found := h.checkout.Attempt(owner)
	if !found || attempt.Session.ID != sessionID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": domain.ErrUnknownSession.Error()})
		return
	}

	if err := h.checkout.HandleProviderCancel(sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *handler) providerCallback(c *gin.Context) {
	var req providerCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid callback body"})
		return
	}
	if req.SessionID == "" || req.PaymentRef == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id and payment_ref are required"})
		return
	}

	order, err := h.checkout.HandleProviderSuccess(domain.CallbackPayload{
		SessionID:  req.SessionID,
		PaymentRef: req.PaymentRef,
		Signature:  req.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}
