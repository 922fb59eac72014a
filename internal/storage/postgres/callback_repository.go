package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type callbackRepository struct {
	db *sql.DB
}

// NewCallbackRepository создаёт PostgreSQL-реализацию CallbackRepository.
func NewCallbackRepository(store *Store) domain.CallbackRepository {
	return &callbackRepository{db: store.DB()}
}

func (r *callbackRepository) CreateProcessing(sessionID, payloadHash string, ttlAt time.Time) (domain.CallbackRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	payloadHash = strings.TrimSpace(payloadHash)

	if sessionID == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackSessionRequired
	}
	if payloadHash == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Запись со статусом failed заменяется свежей доставкой: неуспешная
	// обработка не должна навсегда блокировать сессию.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO callback_records (
			session_id, payload_hash, status, ttl_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id) DO UPDATE
		SET payload_hash = EXCLUDED.payload_hash,
		    order_id = NULL,
		    reason = NULL,
		    status = EXCLUDED.status,
		    ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE callback_records.status = 'failed'
	`,
		sessionID, payloadHash, string(domain.CallbackStatusProcessing), ttlAt, now, now,
	)
	if err != nil {
		return domain.CallbackRecord{}, fmt.Errorf("create callback record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.CallbackRecord{}, fmt.Errorf("callback rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.Get(sessionID)
		if getErr != nil {
			return domain.CallbackRecord{}, domain.ErrCallbackAlreadyExists
		}
		if existing.PayloadHash != payloadHash {
			return existing, domain.ErrCallbackHashMismatch
		}
		return existing, domain.ErrCallbackAlreadyExists
	}

	return domain.CallbackRecord{
		SessionID:   sessionID,
		PayloadHash: payloadHash,
		Status:      domain.CallbackStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *callbackRepository) Get(sessionID string) (domain.CallbackRecord, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.CallbackRecord{}, domain.ErrCallbackSessionRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record    domain.CallbackRecord
		statusRaw string
		orderID   sql.NullString
		reason    sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, payload_hash, order_id, reason, status, ttl_at, created_at, updated_at
		FROM callback_records
		WHERE session_id = $1
	`, sessionID).Scan(
		&record.SessionID,
		&record.PayloadHash,
		&orderID,
		&reason,
		&statusRaw,
		&record.TTLAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CallbackRecord{}, domain.ErrCallbackNotFound
		}
		return domain.CallbackRecord{}, fmt.Errorf("get callback record: %w", err)
	}

	record.Status = domain.CallbackStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.CallbackRecord{}, fmt.Errorf("invalid callback status %q for session %s", statusRaw, sessionID)
	}
	record.OrderID = orderID.String
	record.Reason = reason.String

	return record, nil
}

func (r *callbackRepository) MarkDone(sessionID, orderID string) error {
	return r.markStatus(sessionID, domain.CallbackStatusDone, orderID, "")
}

func (r *callbackRepository) MarkFailed(sessionID, reason string) error {
	return r.markStatus(sessionID, domain.CallbackStatusFailed, "", reason)
}

func (r *callbackRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)

	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM callback_records
			WHERE session_id IN (
				SELECT session_id
				FROM callback_records
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM callback_records
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired callback records: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("callback rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *callbackRepository) markStatus(sessionID string, status domain.CallbackStatus, orderID, reason string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrCallbackSessionRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE callback_records
		SET order_id = NULLIF($1, ''),
		    reason = NULLIF($2, ''),
		    status = $3,
		    updated_at = $4
		WHERE session_id = $5
	`,
		orderID,
		reason,
		string(status),
		time.Now().UTC(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark callback record status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("callback rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCallbackNotFound
	}

	return nil
}

var _ domain.CallbackRepository = (*callbackRepository)(nil)
