// Package shoptest is an in-memory fake of the remote catalog/order service,
// good enough for client tests and local development. It speaks the same
// routes and JSON the real service does, issues HS256 bearer tokens and gates
// admin routes on the token's role claim.
package shoptest

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/orders"
)

type account struct {
	identity models.Identity
	password string
}

type Server struct {
	e      *echo.Echo
	secret []byte

	mu         sync.Mutex
	accounts   map[string]*account
	products   []models.Product
	categories []models.Category
	orders     []models.Order
	nextID     int64

	// FailOrders makes POST /orders answer 500, for failure-path tests.
	FailOrders bool
}

func New() *Server {
	s := &Server{
		e:        echo.New(),
		secret:   []byte("shoptest-secret"),
		accounts: map[string]*account{},
		nextID:   100,
	}
	s.e.HideBanner = true

	s.SeedUser("admin", "admin", models.RoleAdmin)

	s.e.POST("/auth/login", s.login)
	s.e.POST("/auth/register", s.register)

	s.e.GET("/products", s.listProducts)
	s.e.GET("/products/search", s.searchProducts)
	s.e.GET("/products/category/:id", s.productsByCategory)
	s.e.GET("/products/:id", s.getProduct)
	s.e.POST("/products", s.createProduct, s.auth, s.adminOnly)
	s.e.PUT("/products/:id", s.updateProduct, s.auth, s.adminOnly)
	s.e.DELETE("/products/:id", s.deleteProduct, s.auth, s.adminOnly)

	s.e.GET("/categories", s.listCategories)
	s.e.GET("/categories/:id", s.getCategory)
	s.e.POST("/categories", s.createCategory, s.auth, s.adminOnly)
	s.e.PUT("/categories/:id", s.updateCategory, s.auth, s.adminOnly)
	s.e.DELETE("/categories/:id", s.deleteCategory, s.auth, s.adminOnly)

	s.e.POST("/orders", s.createOrder, s.auth)
	s.e.GET("/orders", s.listOrders, s.auth, s.adminOnly)
	s.e.GET("/orders/user/:id", s.userOrders, s.auth)
	s.e.GET("/orders/:id", s.getOrder, s.auth)
	s.e.PUT("/orders/:id/status", s.updateOrderStatus, s.auth, s.adminOnly)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// SeedUser registers an account directly and returns its identity.
func (s *Server) SeedUser(username, password, role string) models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := models.Identity{ID: s.nextID, Username: username, Role: role}
	s.accounts[username] = &account{identity: id, password: password}
	return id
}

// SeedProduct adds a catalog entry and returns it with its assigned id.
func (s *Server) SeedProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.products = append(s.products, p)
	return p
}

// SeedOrder installs an order as-is (id included), for lifecycle tests.
func (s *Server) SeedOrder(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		s.nextID++
		o.ID = s.nextID
	}
	s.orders = append(s.orders, o)
	return o
}

// Order returns the server-side copy, for asserting persisted state.
func (s *Server) Order(id int64) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, true
		}
	}
	return models.Order{}, false
}

func (s *Server) issueToken(id models.Identity) string {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(id.ID, 10),
		"role": id.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return tok
}

func (s *Server) auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == c.Request().Header.Get("Authorization") {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		})
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}

		sub, _ := claims["sub"].(string)
		userID, _ := strconv.ParseInt(sub, 10, 64)
		role, _ := claims["role"].(string)
		c.Set("user_id", userID)
		c.Set("role", role)
		return next(c)
	}
}

func (s *Server) adminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Get("role") != models.RoleAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
		}
		return next(c)
	}
}

func (s *Server) login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	s.mu.Unlock()
	if !ok || acc.password != req.Password {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "bad credentials"})
	}

	return c.JSON(http.StatusOK, echo.Map{"token": s.issueToken(acc.identity), "user": acc.identity})
}

func (s *Server) register(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Address  string `json:"address"`
		Phone    string `json:"phone"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password required"})
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Username]; exists {
		s.mu.Unlock()
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username taken"})
	}
	s.nextID++
	id := models.Identity{
		ID:       s.nextID,
		Username: req.Username,
		Role:     models.RoleCustomer,
		FullName: req.FullName,
		Email:    req.Email,
		Address:  req.Address,
		Phone:    req.Phone,
	}
	s.accounts[req.Username] = &account{identity: id, password: req.Password}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, echo.Map{"token": s.issueToken(id), "user": id})
}

func (s *Server) createOrder(c echo.Context) error {
	if s.FailOrders {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order storage unavailable"})
	}

	var req struct {
		UserID          int64              `json:"userId"`
		ShippingAddress string             `json:"shippingAddress"`
		Phone           string             `json:"phone"`
		Items           []models.OrderItem `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.Items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "items required"})
	}
	if req.ShippingAddress == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "shipping address required"})
	}

	var total float64
	for _, it := range req.Items {
		if it.Quantity <= 0 || it.Price < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item"})
		}
		total += it.Price * float64(it.Quantity)
	}

	s.mu.Lock()
	s.nextID++
	o := models.Order{
		ID:              s.nextID,
		UserID:          req.UserID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		TotalAmount:     total,
		Status:          orders.StatusPending,
		OrderDate:       time.Now().UTC(),
	}
	s.orders = append(s.orders, o)
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, o)
}

func (s *Server) listOrders(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.JSON(http.StatusOK, s.orders)
}

func (s *Server) userOrders(c echo.Context) error {
	userID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	if c.Get("role") != models.RoleAdmin && c.Get("user_id") != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your orders"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getOrder(c echo.Context) error {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			if c.Get("role") != models.RoleAdmin && c.Get("user_id") != o.UserID {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "not your order"})
			}
			return c.JSON(http.StatusOK, o)
		}
	}
	return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
}

func (s *Server) updateOrderStatus(c echo.Context) error {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if !orders.ValidStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = req.Status
			return c.JSON(http.StatusOK, s.orders[i])
		}
	}
	return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
}
