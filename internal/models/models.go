package models

import (
	"strconv"
	"time"
)

const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Identity is the authenticated user as the remote service reports it on
// login/register. Field names follow the service's JSON.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"imageUrl"`
	CategoryID  int64   `json:"categoryId"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CartLine is one product in the local cart. At most one line exists per
// ProductID; adding the same product again increments Quantity.
type CartLine struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	ImageURL    string  `json:"imageUrl"`
}

func (l CartLine) LineTotal() float64 {
	return l.Price * float64(l.Quantity)
}

type OrderItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is service-owned; the client only mirrors it.
type Order struct {
	ID              int64       `json:"id"`
	UserID          int64       `json:"userId"`
	Items           []OrderItem `json:"orderItems"`
	ShippingAddress string      `json:"shippingAddress"`
	Phone           string      `json:"phone"`
	TotalAmount     float64     `json:"totalAmount"`
	Status          string      `json:"status"`
	OrderDate       time.Time   `json:"orderDate"`
}

// FormatAmount renders a monetary value for display. Amounts stay float64
// internally; rounding happens only here.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
