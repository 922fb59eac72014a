package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ProviderSessionID) == "" {
		return domain.Order{}, domain.ErrProviderSessionRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, owner_ref, status, currency, amount_minor,
			provider_session_id, provider_payment_ref, provider_signature, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		order.ID, order.OwnerRef, string(order.Status), order.Currency, order.AmountMinor,
		order.ProviderSessionID, order.ProviderPaymentRef, order.ProviderSignature, order.CreatedAt,
	)
	if err != nil {
		// UNIQUE по provider_session_id гарантирует exactly-once запись заказа.
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrSessionAlreadyRecorded
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = order.CreatedAt
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_ref, display_name, unit_price, qty, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, item.ProductRef, item.DisplayName,
			item.UnitPrice.String(), item.Qty, item.CreatedAt,
		); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		items = append(items, item)
	}
	order.Items = items

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) GetBySession(providerSessionID string) (domain.Order, error) {
	providerSessionID = strings.TrimSpace(providerSessionID)
	if providerSessionID == "" {
		return domain.Order{}, domain.ErrProviderSessionRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		order  domain.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_ref, status, currency, amount_minor,
		       provider_session_id, provider_payment_ref, provider_signature, created_at
		FROM orders
		WHERE provider_session_id = $1
	`, providerSessionID).Scan(
		&order.ID, &order.OwnerRef, &status, &order.Currency, &order.AmountMinor,
		&order.ProviderSessionID, &order.ProviderPaymentRef, &order.ProviderSignature, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order by session: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByOwner(ownerRef string, limit int) ([]domain.Order, error) {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return nil, domain.ErrOwnerRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, owner_ref, status, currency, amount_minor,
		       provider_session_id, provider_payment_ref, provider_signature, created_at
		FROM orders
		WHERE owner_ref = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", ownerRef, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, ownerRef)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			order  domain.Order
			status string
		)
		if err := rows.Scan(
			&order.ID, &order.OwnerRef, &status, &order.Currency, &order.AmountMinor,
			&order.ProviderSessionID, &order.ProviderPaymentRef, &order.ProviderSignature, &order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)

		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_ref, display_name, unit_price, qty, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item      domain.OrderItem
			unitPrice string
		)
		if err := rows.Scan(&item.ID, &item.ProductRef, &item.DisplayName, &unitPrice, &item.Qty, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		item.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, fmt.Errorf("parse order item unit price: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
