package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Корзина хранится построчно: мутация одной позиции не перезаписывает
// соседние и не теряет конкурентные обновления других позиций.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(ownerRef string) (domain.Cart, error) {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.loadCart(ctx, ownerRef)
}

func (r *cartRepository) UpsertLine(ownerRef string, line domain.CartLine) (domain.Cart, error) {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}
	if line.ProductRef == "" {
		return domain.Cart{}, domain.ErrProductRefRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	addedAt := line.AddedAt
	if addedAt.IsZero() {
		addedAt = now
	}

	// Снапшот имени/цены при конфликте не трогаем: перезаписывается только количество.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_lines (
			owner_ref, product_ref, display_name, unit_price, quantity, added_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (owner_ref, product_ref) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    updated_at = EXCLUDED.updated_at
	`,
		ownerRef, line.ProductRef, line.DisplayName, line.UnitPrice.String(),
		line.Quantity, addedAt, now,
	)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("upsert cart line: %w", err)
	}

	return r.loadCart(ctx, ownerRef)
}

func (r *cartRepository) RemoveLine(ownerRef, productRef string) (domain.Cart, error) {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return domain.Cart{}, domain.ErrOwnerRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Удаление отсутствующей позиции считается успехом.
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE owner_ref = $1 AND product_ref = $2
	`, ownerRef, productRef); err != nil {
		return domain.Cart{}, fmt.Errorf("remove cart line: %w", err)
	}

	return r.loadCart(ctx, ownerRef)
}

func (r *cartRepository) Clear(ownerRef string) error {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return domain.ErrOwnerRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE owner_ref = $1
	`, ownerRef); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return nil
}

func (r *cartRepository) loadCart(ctx context.Context, ownerRef string) (domain.Cart, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_ref, display_name, unit_price, quantity, added_at, updated_at
		FROM cart_lines
		WHERE owner_ref = $1
		ORDER BY added_at ASC, product_ref ASC
	`, ownerRef)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart lines: %w", err)
	}
	defer rows.Close()

	cart := domain.Cart{OwnerRef: ownerRef}
	for rows.Next() {
		var (
			line      domain.CartLine
			unitPrice string
			updatedAt time.Time
		)
		if err := rows.Scan(
			&line.ProductRef, &line.DisplayName, &unitPrice,
			&line.Quantity, &line.AddedAt, &updatedAt,
		); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart line: %w", err)
		}

		line.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("parse cart line unit price: %w", err)
		}

		cart.Lines = append(cart.Lines, line)
		if updatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart lines: %w", err)
	}

	return cart, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
