package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopfront/shopfront/internal/models"
)

type CreateOrderRequest struct {
	UserID          int64              `json:"userId"`
	ShippingAddress string             `json:"shippingAddress"`
	Phone           string             `json:"phone"`
	Items           []models.OrderItem `json:"items"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/user/%d", userID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Orders lists every order; the service gates it to admins.
func (c *Client) Orders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Order(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	body := map[string]string{"status": status}
	var out models.Order
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d/status", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
