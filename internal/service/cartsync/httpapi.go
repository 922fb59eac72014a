package cartsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const storeAPITimeout = 15 * time.Second

// HTTPStoreAPI — реализация StoreAPI поверх HTTP API магазина.
// Учётные данные подставляются как bearer-токен из CredentialStore.
type HTTPStoreAPI struct {
	baseURL string
	creds   CredentialStore
	client  *http.Client
}

var _ StoreAPI = (*HTTPStoreAPI)(nil)

// NewHTTPStoreAPI создаёт клиент HTTP API магазина.
func NewHTTPStoreAPI(baseURL string, creds CredentialStore) *HTTPStoreAPI {
	return &HTTPStoreAPI{
		baseURL: baseURL,
		creds:   creds,
		client:  &http.Client{Timeout: storeAPITimeout},
	}
}

type cartLinePayload struct {
	ProductRef  string `json:"product_ref"`
	DisplayName string `json:"display_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int32  `json:"quantity"`
	AddedAt     string `json:"added_at"`
}

type cartPayload struct {
	OwnerRef  string            `json:"owner_ref"`
	Lines     []cartLinePayload `json:"lines"`
	UpdatedAt string            `json:"updated_at"`
}

type setQuantityPayload struct {
	Quantity int32 `json:"quantity"`
}

// FetchCart читает авторитетную корзину владельца сессии.
func (a *HTTPStoreAPI) FetchCart() (domain.Cart, error) {
	return a.roundTrip(http.MethodGet, "/api/v1/cart", nil)
}

// SetLineQuantity выставляет количество позиции и возвращает корзину,
// которой магазин ответил на эту мутацию.
func (a *HTTPStoreAPI) SetLineQuantity(productRef string, quantity int32) (domain.Cart, error) {
	body, err := json.Marshal(setQuantityPayload{Quantity: quantity})
	if err != nil {
		return domain.Cart{}, fmt.Errorf("marshal set-quantity request: %w", err)
	}
	path := "/api/v1/cart/lines/" + url.PathEscape(productRef)
	return a.roundTrip(http.MethodPut, path, body)
}

func (a *HTTPStoreAPI) roundTrip(method, path string, body []byte) (domain.Cart, error) {
	token, err := a.creds.Token()
	if err != nil {
		return domain.Cart{}, domain.ErrUnauthorized
	}

	req, err := http.NewRequest(method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("build store request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.Cart{}, domain.ErrUnauthorized
	case resp.StatusCode == http.StatusUnprocessableEntity, resp.StatusCode == http.StatusBadRequest:
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return domain.Cart{}, fmt.Errorf("store rejected mutation: %s", apiErr.Error)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.Cart{}, fmt.Errorf("store returned status %d", resp.StatusCode)
	}

	var payload cartPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart response: %w", err)
	}
	return payload.toDomain()
}

func (p cartPayload) toDomain() (domain.Cart, error) {
	cart := domain.Cart{OwnerRef: p.OwnerRef}
	if p.UpdatedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, p.UpdatedAt)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("parse cart updated_at: %w", err)
		}
		cart.UpdatedAt = ts
	}
	for _, line := range p.Lines {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("parse unit price %q: %w", line.UnitPrice, err)
		}
		var added time.Time
		if line.AddedAt != "" {
			added, err = time.Parse(time.RFC3339Nano, line.AddedAt)
			if err != nil {
				return domain.Cart{}, fmt.Errorf("parse line added_at: %w", err)
			}
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductRef:  line.ProductRef,
			DisplayName: line.DisplayName,
			UnitPrice:   price,
			Quantity:    line.Quantity,
			AddedAt:     added,
		})
	}
	return cart, nil
}

// SessionCredentials — простое потокобезопасное хранилище токена сессии.
type SessionCredentials struct {
	mu    sync.RWMutex
	token string
}

var _ CredentialStore = (*SessionCredentials)(nil)

// NewSessionCredentials создаёт хранилище с выданным при логине токеном.
func NewSessionCredentials(token string) *SessionCredentials {
	return &SessionCredentials{token: token}
}

// Token возвращает текущий токен или ErrUnauthorized после Invalidate.
func (s *SessionCredentials) Token() (string, error) {
	if s == nil {
		return "", domain.ErrUnauthorized
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", domain.ErrUnauthorized
	}
	return s.token, nil
}

// Invalidate гасит токен; последующие операции деградируют до пустой корзины.
func (s *SessionCredentials) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
