package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartLineResponse struct {
	ProductRef  string `json:"product_ref"`
	DisplayName string `json:"display_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int32  `json:"quantity"`
	AddedAt     string `json:"added_at"`
}

type cartResponse struct {
	OwnerRef  string             `json:"owner_ref"`
	Lines     []cartLineResponse `json:"lines"`
	UpdatedAt string             `json:"updated_at"`
}

type attemptResponse struct {
	OwnerRef      string           `json:"owner_ref"`
	State         string           `json:"state"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Session       *sessionResponse `json:"session,omitempty"`
	StartedAt     string           `json:"started_at"`
	UpdatedAt     string           `json:"updated_at"`
}

type sessionResponse struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductRef  string `json:"product_ref"`
	DisplayName string `json:"display_name"`
	UnitPrice   string `json:"unit_price"`
	Qty         int32  `json:"qty"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	OwnerRef           string              `json:"owner_ref"`
	Status             string              `json:"status"`
	Currency           string              `json:"currency"`
	AmountMinor        int64               `json:"amount_minor"`
	Items              []orderItemResponse `json:"items"`
	ProviderSessionID  string              `json:"provider_session_id"`
	ProviderPaymentRef string              `json:"provider_payment_ref"`
	CreatedAt          string              `json:"created_at"`
}

func toCartResponse(cart domain.Cart) cartResponse {
	resp := cartResponse{
		OwnerRef: cart.OwnerRef,
		Lines:    make([]cartLineResponse, 0, len(cart.Lines)),
	}
	if !cart.UpdatedAt.IsZero() {
		resp.UpdatedAt = cart.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, line := range cart.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductRef:  line.ProductRef,
			DisplayName: line.DisplayName,
			UnitPrice:   line.UnitPrice.String(),
			Quantity:    line.Quantity,
			AddedAt:     line.AddedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return resp
}

func toAttemptResponse(attempt domain.CheckoutAttempt) attemptResponse {
	resp := attemptResponse{
		OwnerRef:      attempt.OwnerRef,
		State:         attempt.State.String(),
		FailureReason: string(attempt.FailureReason),
		StartedAt:     attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     attempt.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if attempt.Session.ID != "" {
		resp.Session = &sessionResponse{
			ID:          attempt.Session.ID,
			AmountMinor: attempt.Session.AmountMinor,
			Currency:    attempt.Session.Currency,
		}
	}
	return resp
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID,
		OwnerRef:           order.OwnerRef,
		Status:             string(order.Status),
		Currency:           order.Currency,
		AmountMinor:        order.AmountMinor,
		Items:              make([]orderItemResponse, 0, len(order.Items)),
		ProviderSessionID:  order.ProviderSessionID,
		ProviderPaymentRef: order.ProviderPaymentRef,
		CreatedAt:          order.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          item.ID,
			ProductRef:  item.ProductRef,
			DisplayName: item.DisplayName,
			UnitPrice:   item.UnitPrice.String(),
			Qty:         item.Qty,
		})
	}
	return resp
}

// writeError переводит доменную ошибку в HTTP-статус и JSON-ответ.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrSignatureMismatch):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCheckoutInProgress),
		errors.Is(err, domain.ErrCallbackAlreadyExists),
		errors.Is(err, domain.ErrCallbackHashMismatch):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrIncompleteOrderData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrQuantityNegative),
		errors.Is(err, domain.ErrOwnerRequired),
		errors.Is(err, domain.ErrProductRefRequired):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	}

	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
