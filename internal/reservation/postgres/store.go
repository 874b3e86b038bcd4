// Package postgres implements the reservation ports on the shared
// relational store. The stock decrement, the marker flip, and the journal
// append with its outbox event each run inside a single transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
	"github.com/orderflow/orderflow/pkg/tracing"
)

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

// --- reservation.StockLedger ---

func (s *Store) Get(ctx context.Context, productID string) (reservation.ProductStock, error) {
	st := reservation.ProductStock{ProductID: productID}
	err := s.pool.QueryRow(ctx,
		`SELECT quantity, version FROM products WHERE id=$1`, productID).
		Scan(&st.Quantity, &st.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.ProductStock{}, reservation.ErrProductNotFound
	}
	if err != nil {
		return reservation.ProductStock{}, err
	}
	return st, nil
}

// Decrement is the serialization point for a product: the conditional
// UPDATE succeeds for exactly one of any set of concurrent reservations
// holding the same version. The marker flip rides the same transaction,
// so a durable decrement always leaves a reserved marker behind.
func (s *Store) Decrement(ctx context.Context, productID string, quantity, version int64, reservationKey string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx,
		`UPDATE products
		 SET quantity = quantity - $2, version = version + 1
		 WHERE id = $1 AND version = $3 AND quantity >= $2`,
		productID, quantity, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return reservation.ErrVersionConflict
	}

	_, err = tx.Exec(ctx,
		`UPDATE reservation_markers
		 SET state = 'reserved', updated_at = now()
		 WHERE idempotency_key = $1`,
		reservationKey)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// --- reservation.Journal ---

// Append journals the record and stages its outbox event atomically. A key
// conflict returns the previously appended record unchanged.
func (s *Store) Append(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, product_id, quantity, status, idempotency_key, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		o.ID, o.UserID, o.ProductID, o.Quantity, o.Status, o.IdempotencyKey, o.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	if ct.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return domain.Order{}, err
		}
		existing, found, err := s.LookupByKey(ctx, o.IdempotencyKey)
		if err != nil {
			return domain.Order{}, err
		}
		if !found {
			return domain.Order{}, fmt.Errorf("journal row for key %s vanished", o.IdempotencyKey)
		}
		return existing, nil
	}

	eventType, payload, err := eventFor(o)
	if err != nil {
		return domain.Order{}, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		 VALUES ($1,$2,$3,$4,$5,'pending')`,
		"order", o.ID, eventType, payload, tracing.Traceparent(ctx))
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Store) LookupByKey(ctx context.Context, idempotencyKey string) (domain.Order, bool, error) {
	var o domain.Order
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, quantity, status, idempotency_key, created_at
		 FROM orders WHERE idempotency_key = $1`, idempotencyKey).
		Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.Status, &o.IdempotencyKey, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}

func eventFor(o domain.Order) (string, []byte, error) {
	if o.Status == domain.StatusRejected {
		payload, err := json.Marshal(domain.OrderRejected{
			OrderID:   o.ID,
			UserID:    o.UserID,
			ProductID: o.ProductID,
			Quantity:  o.Quantity,
			Reason:    "insufficient stock",
		})
		return domain.EventOrderRejected, payload, err
	}
	payload, err := json.Marshal(domain.OrderCommitted{
		OrderID:   o.ID,
		UserID:    o.UserID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
	})
	return domain.EventOrderCommitted, payload, err
}

// --- reservation.MarkerStore ---

func (s *Store) Create(ctx context.Context, m reservation.Marker) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO reservation_markers (idempotency_key, order_id, user_id, product_id, quantity, state)
		 VALUES ($1,$2,$3,$4,$5,'pending')
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		m.IdempotencyKey, m.OrderID, m.UserID, m.ProductID, m.Quantity)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return reservation.ErrMarkerExists
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, idempotencyKey string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM reservation_markers WHERE idempotency_key = $1`, idempotencyKey)
	return err
}

func (s *Store) DeletePending(ctx context.Context, idempotencyKey string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM reservation_markers WHERE idempotency_key = $1 AND state = 'pending'`,
		idempotencyKey)
	return err
}

func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]reservation.Marker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idempotency_key, order_id, user_id, product_id, quantity, state, created_at, updated_at
		 FROM reservation_markers
		 WHERE updated_at < $1
		 ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Marker
	for rows.Next() {
		var m reservation.Marker
		if err := rows.Scan(&m.IdempotencyKey, &m.OrderID, &m.UserID, &m.ProductID,
			&m.Quantity, &m.State, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
