// Package checkout is the transactional bridge from the local cart to a
// placed order. Local state changes only after the service confirms the
// order, so a failed submission always leaves a retryable cart behind.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopfront/shopfront/internal/api"
	"github.com/shopfront/shopfront/internal/cart"
	"github.com/shopfront/shopfront/internal/events"
	"github.com/shopfront/shopfront/internal/logging"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/orders"
	"github.com/shopfront/shopfront/internal/session"
)

var ErrValidation = errors.New("validation")

type Coordinator struct {
	Sess   *session.Session
	Cart   *cart.Store
	Client *api.Client
	Orders *orders.Model
	Events *events.Emitter
}

// PlaceOrder validates locally, submits the cart snapshot and reconciles on
// success: cart cleared, order mirrored with the status the service set.
// Each precondition fails with its own message and before any network call.
func (c *Coordinator) PlaceOrder(ctx context.Context, shippingAddress, phone string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("component", "checkout")

	if strings.TrimSpace(shippingAddress) == "" {
		return nil, fmt.Errorf("%w: shipping address required", ErrValidation)
	}

	lines := c.Cart.Lines()
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	id := c.Sess.CurrentIdentity()
	if id == nil || id.ID <= 0 {
		return nil, fmt.Errorf("%w: login required", ErrValidation)
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}

	order, err := c.Client.CreateOrder(ctx, api.CreateOrderRequest{
		UserID:          id.ID,
		ShippingAddress: shippingAddress,
		Phone:           phone,
		Items:           items,
	})
	if err != nil {
		l.Warn("order submission failed, cart kept", "error", err, "retryable", api.Retryable(err))
		return nil, err
	}

	// The order exists remotely from here on; a failed local cleanup must not
	// be reported as a failed checkout.
	if err := c.Cart.Clear(ctx); err != nil {
		l.Warn("cart clear after checkout failed", "error", err, "order_id", order.ID)
	}

	c.Orders.Register(*order)
	c.Events.Emit(events.Event{
		Type:    events.TypeOrderPlaced,
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status,
		Total:   order.TotalAmount,
	})

	l.Info("order placed", "order_id", order.ID, "status", order.Status, "total", order.TotalAmount)
	return order, nil
}
