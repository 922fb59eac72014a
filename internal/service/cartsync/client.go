package cartsync

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StoreAPI — вид магазина со стороны клиента: чтение корзины и одна
// мутация позиции. Реализация по HTTP — в HTTPStoreAPI.
type StoreAPI interface {
	FetchCart() (domain.Cart, error)
	SetLineQuantity(productRef string, quantity int32) (domain.Cart, error)
}

// CredentialStore хранит учётные данные сессии покупателя.
type CredentialStore interface {
	Token() (string, error)
	Invalidate()
}

// Client держит локальное зеркало корзины: мгновенный оптимистичный отклик
// для UI при эвентуальной согласованности с магазином. Явный объект с
// жизненным циклом (создаётся на входе в сессию, разбирается на logout),
// внедряется в UI-код, а не глобальное состояние.
//
// Модель по каждой позиции двухуровневая: подтверждённое магазином
// количество и последнее выданное намерение. Ответ магазина признаётся
// авторитетным только если он отвечает последнему выданному интенту по
// этой позиции.
type Client struct {
	api    StoreAPI
	creds  CredentialStore
	logger *log.Entry

	// mu защищает состояние зеркала; сетевые вызовы мьютекс не держат.
	mu        sync.Mutex
	confirmed domain.Cart
	pending   map[string]Intent
	mirror    domain.Cart
	nextSeq   uint64
}

// NewClient создаёт клиент с пустым зеркалом. До первого Refresh зеркало
// отражает пустую корзину.
func NewClient(api StoreAPI, creds CredentialStore, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.New().WithField("component", "cart-sync")
	}
	return &Client{
		api:     api,
		creds:   creds,
		logger:  logger,
		pending: make(map[string]Intent),
	}
}

// Cart возвращает снимок текущего зеркала.
func (c *Client) Cart() domain.Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCart(c.mirror)
}

// Refresh подтягивает авторитетную корзину магазина (навигационное событие).
// Висящие интенты сохраняются поверх свежего состояния.
func (c *Client) Refresh() error {
	cart, err := c.api.FetchCart()
	if err != nil {
		if domain.IsUnauthorized(err) {
			c.degrade()
			return nil
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = cart
	c.mirror = Reconcile(c.confirmed, c.pending)
	return nil
}

// RequestQuantityChange применяет изменение к зеркалу немедленно и выдаёт
// мутацию магазину асинхронно. Канал закрывается с результатом round-trip'а;
// UI может его игнорировать — зеркало сходится само.
//
// Отрицательное количество отклоняется сразу, без мутации и без запроса.
func (c *Client) RequestQuantityChange(productRef string, quantity int32) <-chan error {
	done := make(chan error, 1)

	if quantity < 0 {
		done <- domain.ErrQuantityNegative
		return done
	}

	c.mu.Lock()
	c.nextSeq++
	seq := c.nextSeq
	c.pending[productRef] = Intent{Seq: seq, Quantity: quantity, IssuedAt: time.Now()}
	c.mirror = Reconcile(c.confirmed, c.pending)
	c.mu.Unlock()

	go func() {
		cart, err := c.api.SetLineQuantity(productRef, quantity)
		done <- c.resolve(productRef, seq, cart, err)
	}()

	return done
}

// resolve применяет результат round-trip'а одного интента.
func (c *Client) resolve(productRef string, seq uint64, cart domain.Cart, err error) error {
	c.mu.Lock()
	intent, ok := c.pending[productRef]
	if !ok || intent.Seq != seq {
		// Пока запрос летал, по этой позиции выдан более свежий интент.
		// Устаревший ответ не имеет права перетереть новое намерение.
		c.mu.Unlock()
		c.logger.WithFields(log.Fields{
			"product_ref": productRef,
			"seq":         seq,
		}).Debug("stale cart mutation response dropped")
		return nil
	}
	delete(c.pending, productRef)

	if err == nil {
		c.confirmed = cart
		c.mirror = Reconcile(c.confirmed, c.pending)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if domain.IsUnauthorized(err) {
		c.degrade()
		return err
	}

	// Оптимистичное изменение отброшено; зеркало не должно расходиться с
	// магазином дольше одного round-trip'а.
	c.logger.WithError(err).WithField("product_ref", productRef).Warn("cart mutation failed, refetching")
	if refErr := c.Refresh(); refErr != nil {
		c.logger.WithError(refErr).Warn("cart refetch after failed mutation")
		c.mu.Lock()
		c.mirror = Reconcile(c.confirmed, c.pending)
		c.mu.Unlock()
	}
	return err
}

// degrade сбрасывает зеркало в пустую корзину и гасит учётные данные.
// UI-путь не падает: просроченная сессия выглядит как пустая корзина.
func (c *Client) degrade() {
	c.mu.Lock()
	c.confirmed = domain.Cart{}
	c.pending = make(map[string]Intent)
	c.mirror = domain.Cart{}
	c.mu.Unlock()

	if c.creds != nil {
		c.creds.Invalidate()
	}
	c.logger.Info("credential invalidated, cart mirror degraded to empty")
}

func cloneCart(cart domain.Cart) domain.Cart {
	out := cart
	out.Lines = make([]domain.CartLine, len(cart.Lines))
	copy(out.Lines, cart.Lines)
	return out
}
