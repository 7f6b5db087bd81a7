// Package cart is the session-scoped shopping cart aggregate. Lines live in
// memory in insertion order; every mutation persists the whole cart before it
// returns, so a reload sees the same cart but a logout never does.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopfront/shopfront/internal/localstore"
	"github.com/shopfront/shopfront/internal/logging"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/session"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
)

// doc is the persisted shape. UserID keys the cart to the session that wrote
// it: a cart left behind by another identity reads as empty.
type doc struct {
	UserID int64             `json:"userId"`
	Lines  []models.CartLine `json:"lines"`
}

type Store struct {
	mu    sync.Mutex
	local localstore.Store
	sess  *session.Session
	lines []models.CartLine
}

func New(local localstore.Store, sess *session.Session) *Store {
	s := &Store{local: local, sess: sess}
	sess.OnLogout(s.drop)
	return s
}

// Load reads the persisted cart. Absent, malformed or foreign-session data
// loads as an empty cart.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.local.Get(ctx, localstore.KeyCart)
	if errors.Is(err, localstore.ErrNoValue) {
		return nil
	}
	if err != nil {
		return err
	}

	var d doc
	if err := json.Unmarshal(raw, &d); err != nil {
		logging.FromContext(ctx).Warn("malformed cart in store, ignoring", "error", err)
		return nil
	}
	if d.UserID != s.ownerID() {
		return nil
	}

	s.mu.Lock()
	s.lines = d.Lines
	s.mu.Unlock()
	return nil
}

// Add appends a line for the product, or increments the existing line's
// quantity. Quantity must be positive.
func (s *Store) Add(ctx context.Context, p models.Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
	}
	if p.ID <= 0 {
		return fmt.Errorf("%w: product without id", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLines()
	found := false
	for i := range next {
		if next[i].ProductID == p.ID {
			next[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		next = append(next, models.CartLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Quantity:    quantity,
			ImageURL:    p.ImageURL,
		})
	}

	return s.commit(ctx, next)
}

// UpdateQuantity sets a line's quantity. Requests below 1 are coerced to 1;
// a missing line is an error.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLines()
	for i := range next {
		if next[i].ProductID == productID {
			next[i].Quantity = quantity
			return s.commit(ctx, next)
		}
	}
	return fmt.Errorf("%w: product %d not in cart", ErrNotFound, productID)
}

// Remove deletes a line. Removing an absent product is a no-op.
func (s *Store) Remove(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLines()
	for i := range next {
		if next[i].ProductID == productID {
			next = append(next[:i], next[i+1:]...)
			return s.commit(ctx, next)
		}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, nil)
}

// Lines returns a snapshot of the cart in insertion order.
func (s *Store) Lines() []models.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLines()
}

// Count is the sum of quantities, for the cart badge.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Total is the sum of price x quantity over all lines. Full precision;
// rounding is a presentation concern.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, l := range s.lines {
		total += l.LineTotal()
	}
	return total
}

// commit persists the candidate lines and only then makes them visible, so a
// failed write never leaves memory and disk disagreeing. Callers hold mu.
func (s *Store) commit(ctx context.Context, next []models.CartLine) error {
	raw, err := json.Marshal(doc{UserID: s.ownerID(), Lines: next})
	if err != nil {
		return err
	}
	if err := s.local.Set(ctx, localstore.KeyCart, raw); err != nil {
		return err
	}
	s.lines = next
	return nil
}

func (s *Store) copyLines() []models.CartLine {
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) ownerID() int64 {
	if id := s.sess.CurrentIdentity(); id != nil {
		return id.ID
	}
	return 0
}

func (s *Store) drop() {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()
}
