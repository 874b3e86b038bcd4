// Package memory implements the reservation ports over in-process maps,
// one mutex playing the role of the shared database. It backs unit and
// concurrency tests; the postgres package is the production counterpart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/internal/reservation"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]bool
	stock    map[string]reservation.ProductStock
	journal  map[string]domain.Order // by idempotency key
	byID     map[string]domain.Order
	markers  map[string]reservation.Marker
	appended []string // idempotency keys in append order
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]bool),
		stock:   make(map[string]reservation.ProductStock),
		journal: make(map[string]domain.Order),
		byID:    make(map[string]domain.Order),
		markers: make(map[string]reservation.Marker),
	}
}

// SeedUser registers a user ID, standing in for the user service.
func (s *Store) SeedUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
}

// SeedProduct creates a stock record, standing in for product registration.
func (s *Store) SeedProduct(productID string, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = reservation.ProductStock{ProductID: productID, Quantity: quantity, Version: 0}
}

// Quantity reports current on-hand stock, for test assertions.
func (s *Store) Quantity(productID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID].Quantity
}

// --- reservation.UserDirectory ---

func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

// --- reservation.StockLedger ---

func (s *Store) Get(ctx context.Context, productID string) (reservation.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stock[productID]
	if !ok {
		return reservation.ProductStock{}, reservation.ErrProductNotFound
	}
	return st, nil
}

func (s *Store) Decrement(ctx context.Context, productID string, quantity, version int64, reservationKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stock[productID]
	if !ok {
		return reservation.ErrProductNotFound
	}
	// Version match implies the quantity is unchanged since the caller's
	// read; the explicit check mirrors the database CHECK constraint.
	if st.Version != version || st.Quantity < quantity {
		return reservation.ErrVersionConflict
	}

	st.Quantity -= quantity
	st.Version++
	s.stock[productID] = st

	// Same "transaction" as the decrement, like the postgres ledger.
	if m, ok := s.markers[reservationKey]; ok {
		m.State = reservation.MarkerReserved
		m.UpdatedAt = time.Now().UTC()
		s.markers[reservationKey] = m
	}
	return nil
}

// --- reservation.Journal ---

func (s *Store) Append(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.journal[order.IdempotencyKey]; ok {
		return existing, nil
	}
	s.journal[order.IdempotencyKey] = order
	s.byID[order.ID] = order
	s.appended = append(s.appended, order.IdempotencyKey)
	return order, nil
}

func (s *Store) LookupByKey(ctx context.Context, idempotencyKey string) (domain.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.journal[idempotencyKey]
	return rec, ok, nil
}

// GetOrder returns a journal entry by order ID.
func (s *Store) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return rec, nil
}

// ListOrders returns all journal entries in append order.
func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.appended))
	for _, key := range s.appended {
		out = append(out, s.journal[key])
	}
	return out, nil
}

// --- reservation.MarkerStore ---

func (s *Store) Create(ctx context.Context, m reservation.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[m.IdempotencyKey]; ok {
		return reservation.ErrMarkerExists
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.markers[m.IdempotencyKey] = m
	return nil
}

func (s *Store) Delete(ctx context.Context, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, idempotencyKey)
	return nil
}

func (s *Store) DeletePending(ctx context.Context, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markers[idempotencyKey]; ok && m.State == reservation.MarkerPending {
		delete(s.markers, idempotencyKey)
	}
	return nil
}

func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]reservation.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reservation.Marker
	for _, m := range s.markers {
		if m.UpdatedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Marker exposes a marker for test assertions.
func (s *Store) Marker(idempotencyKey string) (reservation.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[idempotencyKey]
	return m, ok
}

// TouchMarker backdates a marker's updated_at so tests can make it stale.
func (s *Store) TouchMarker(idempotencyKey string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markers[idempotencyKey]; ok {
		m.UpdatedAt = at
		s.markers[idempotencyKey] = m
	}
}
