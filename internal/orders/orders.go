// Package orders models the order lifecycle: the status machine the admin
// console drives and the locally mirrored order list the views read. The
// service owns every order; the mirror changes only after a remote call
// confirms.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopfront/shopfront/internal/api"
	"github.com/shopfront/shopfront/internal/events"
	"github.com/shopfront/shopfront/internal/logging"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/session"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrTransition = errors.New("illegal status transition")
)

type Model struct {
	mu     sync.RWMutex
	client *api.Client
	sess   *session.Session
	events *events.Emitter
	mirror []models.Order

	// Permissive restores the original admin-console behavior: any status may
	// be set from any other. Default enforces the ordered table in status.go.
	Permissive bool
}

func NewModel(client *api.Client, sess *session.Session, em *events.Emitter) *Model {
	return &Model{client: client, sess: sess, events: em}
}

// RefreshMine reloads the mirror with the current identity's own orders.
func (m *Model) RefreshMine(ctx context.Context) error {
	id := m.sess.CurrentIdentity()
	if id == nil {
		return fmt.Errorf("%w: not logged in", ErrForbidden)
	}

	list, err := m.client.UserOrders(ctx, id.ID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.mirror = list
	m.mu.Unlock()
	return nil
}

// RefreshAll reloads the mirror with every order. Admin only.
func (m *Model) RefreshAll(ctx context.Context) error {
	if !m.sess.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}

	list, err := m.client.Orders(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.mirror = list
	m.mu.Unlock()
	return nil
}

// Orders returns a snapshot of the mirror.
func (m *Model) Orders() []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, len(m.mirror))
	copy(out, m.mirror)
	return out
}

// Get returns a mirrored order. A customer sees only their own orders.
func (m *Model) Get(id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.mirror {
		if m.mirror[i].ID != id {
			continue
		}
		if !m.sess.IsAdmin() {
			cur := m.sess.CurrentIdentity()
			if cur == nil || cur.ID != m.mirror[i].UserID {
				return nil, fmt.Errorf("%w: order %d", ErrForbidden, id)
			}
		}
		o := m.mirror[i]
		return &o, nil
	}
	return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
}

// Register adds a freshly placed order to the front of the mirror.
func (m *Model) Register(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirror = append([]models.Order{o}, m.mirror...)
}

// Transition asks the service to move an order to next and mirrors the new
// status once the service confirms. Admin only.
func (m *Model) Transition(ctx context.Context, orderID int64, next string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("component", "orders", "order_id", orderID)

	if !m.sess.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	if !ValidStatus(next) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrTransition, next)
	}

	if !m.Permissive {
		cur, err := m.currentStatus(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !CanTransition(cur, next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTransition, cur, next)
		}
	}

	updated, err := m.client.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for i := range m.mirror {
		if m.mirror[i].ID == orderID {
			m.mirror[i].Status = updated.Status
			break
		}
	}
	m.mu.Unlock()

	m.events.Emit(events.Event{
		Type:    events.TypeOrderStatusChanged,
		OrderID: orderID,
		UserID:  updated.UserID,
		Status:  updated.Status,
	})

	l.Info("order status changed", "status", updated.Status)
	return updated, nil
}

// currentStatus prefers the mirror and falls back to the service for orders
// the admin has not loaded yet.
func (m *Model) currentStatus(ctx context.Context, orderID int64) (string, error) {
	m.mu.RLock()
	for i := range m.mirror {
		if m.mirror[i].ID == orderID {
			s := m.mirror[i].Status
			m.mu.RUnlock()
			return s, nil
		}
	}
	m.mu.RUnlock()

	o, err := m.client.Order(ctx, orderID)
	if err != nil {
		return "", err
	}
	return o.Status, nil
}
