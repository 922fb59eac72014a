package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const gatewayTimeout = 10 * time.Second

// HTTPGateway — клиент реального платёжного провайдера поверх его REST API.
type HTTPGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	logger    *log.Entry
}

var _ domain.PaymentGateway = (*HTTPGateway)(nil)

// NewHTTPGateway создаёт клиент провайдера с ключами доступа.
func NewHTTPGateway(baseURL, keyID, keySecret string, logger *log.Entry) *HTTPGateway {
	if logger == nil {
		logger = log.New().WithField("component", "payment-gateway")
	}
	return &HTTPGateway{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: gatewayTimeout},
		logger:    logger,
	}
}

type createSessionRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createSessionResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateSession открывает платёжную сессию у провайдера. Любая сетевая
// ошибка или не-2xx ответ сворачивается в ErrGatewayUnavailable.
func (g *HTTPGateway) CreateSession(amountMinor int64, currency string) (domain.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gatewayTimeout)
	defer cancel()

	body, err := json.Marshal(createSessionRequest{Amount: amountMinor, Currency: currency})
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: marshal request: %v", domain.ErrGatewayUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: build request: %v", domain.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr gatewayError
		if jsonErr := json.Unmarshal(raw, &gwErr); jsonErr == nil && gwErr.Error.Code != "" {
			g.logger.WithFields(log.Fields{
				"status": resp.StatusCode,
				"code":   gwErr.Error.Code,
			}).Warn("gateway rejected session request")
			return domain.PaymentSession{}, fmt.Errorf("%w: %s: %s",
				domain.ErrGatewayUnavailable, gwErr.Error.Code, gwErr.Error.Description)
		}
		return domain.PaymentSession{}, fmt.Errorf("%w: unexpected status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var out createSessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return domain.PaymentSession{}, fmt.Errorf("%w: empty session id in response", domain.ErrGatewayUnavailable)
	}

	return domain.PaymentSession{
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
	}, nil
}
