// Package store persists order records for reconciliation in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"multichain-wallet-api/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `record_id, order_id, provider_id, user_id, status, from_asset, to_asset,
	payout_address, refund_address, external_ref, attempts, last_checked_at,
	scheduled_for, expires_at, created_at, updated_at`

// Store wraps a PostgreSQL connection pool
type Store struct {
	Pool *pgxpool.Pool
}

// New initializes a new database connection pool
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.Pool.Close()
}

func scanOrder(row interface{ Scan(...any) error }) (models.Order, error) {
	var order models.Order
	err := row.Scan(
		&order.RecordID, &order.OrderID, &order.ProviderID, &order.UserID, &order.Status,
		&order.FromAsset, &order.ToAsset, &order.PayoutAddress, &order.RefundAddress,
		&order.ExternalRef, &order.Attempts, &order.LastCheckedAt,
		&order.ScheduledFor, &order.ExpiresAt, &order.CreatedAt, &order.UpdatedAt,
	)
	return order, err
}

// CreateOrder inserts a new order record in pending state.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (models.Order, error) {
	if order.RecordID == uuid.Nil {
		order.RecordID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO wallet_orders (record_id, order_id, provider_id, user_id, status,
			from_asset, to_asset, payout_address, refund_address, external_ref,
			scheduled_for, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+orderColumns,
		order.RecordID, order.OrderID, order.ProviderID, order.UserID, order.Status,
		order.FromAsset, order.ToAsset, order.PayoutAddress, order.RefundAddress,
		order.ExternalRef, order.ScheduledFor, order.ExpiresAt)
	created, err := scanOrder(row)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// SelectPending returns a bounded batch of records eligible for
// reconciliation: pending, due, not expired, optionally scoped to one user.
// includeFresh skips the due check and sweeps records scheduled in the
// future as well.
func (s *Store) SelectPending(ctx context.Context, maxRows int, userID string, includeFresh bool) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM wallet_orders
		WHERE status = 'pending' AND expires_at > now()`
	args := []any{}
	if !includeFresh {
		query += ` AND scheduled_for <= now()`
	}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	args = append(args, maxRows)
	query += fmt.Sprintf(` ORDER BY scheduled_for ASC LIMIT $%d`, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionStatus applies a status change only if the stored status still
// matches the expected one. The conditional update is what makes sweeps
// idempotent and safe against overlapping cron invocations; zero rows
// affected means another sweep got there first, reported as applied=false.
func (s *Store) TransitionStatus(ctx context.Context, recordID uuid.UUID, from, to models.OrderStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("transition %s -> %s is not forward-moving", from, to)
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE wallet_orders
		SET status = $1, updated_at = now()
		WHERE record_id = $2 AND status = $3`,
		to, recordID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TouchChecked bumps the attempt counter and check timestamp after a
// reconciliation pass over a record, applied or not.
func (s *Store) TouchChecked(ctx context.Context, recordID uuid.UUID, checkedAt time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE wallet_orders
		SET attempts = attempts + 1, last_checked_at = $1
		WHERE record_id = $2`,
		checkedAt, recordID)
	if err != nil {
		return fmt.Errorf("failed to touch order: %w", err)
	}
	return nil
}

// GetOrder fetches one record by id.
func (s *Store) GetOrder(ctx context.Context, recordID uuid.UUID) (models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM wallet_orders WHERE record_id = $1`, recordID)
	order, err := scanOrder(row)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}
