// Package http собирает внешний REST API витрины: корзина, checkout,
// заказы и callback платёжного провайдера.
package http

import (
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// CartService — операции над корзиной, нужные транспортному слою.
type CartService interface {
	GetCart(ownerRef string) (domain.Cart, error)
	SetLineQuantity(ownerRef, productRef string, quantity int32) (domain.Cart, error)
	Clear(ownerRef string) error
}

// OrderReader — чтение записанных заказов.
type OrderReader interface {
	ListOrders(ownerRef string, limit int) ([]domain.Order, error)
	GetBySession(providerSessionID string) (domain.Order, error)
}

// Deps перечисляет зависимости REST API.
type Deps struct {
	Cart      CartService
	Checkout  checkout.Orchestrator
	Orders    OrderReader
	JWTSecret string
	Logger    *log.Entry
}

// NewRouter строит gin-роутер со всеми маршрутами витрины.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	if os.Getenv("GIN_MODE") == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(Logger(logger), gin.Recovery())

	h := &handler{
		cart:     deps.Cart,
		checkout: deps.Checkout,
		orders:   deps.Orders,
		logger:   logger,
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// Callback провайдера аутентифицируется подписью payload, не токеном.
		v1.POST("/provider/callback", h.providerCallback)

		authed := v1.Group("")
		authed.Use(RequireAuth(deps.JWTSecret))
		{
			authed.GET("/cart", h.getCart)
			authed.PUT("/cart/lines/:productRef", h.setLineQuantity)
			authed.DELETE("/cart/lines/:productRef", h.removeLine)
			authed.DELETE("/cart", h.clearCart)

			authed.POST("/checkout", h.beginCheckout)
			authed.GET("/checkout", h.currentAttempt)
			authed.POST("/checkout/sessions/:sessionID/cancel", h.cancelCheckout)

			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/sessions/:sessionID", h.getOrderBySession)
		}
	}

	return r
}

type handler struct {
	cart     CartService
	checkout checkout.Orchestrator
	orders   OrderReader
	logger   *log.Entry
}
