package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/shopfront/internal/localstore"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/session"
)

type env struct {
	store localstore.Store
	sess  *session.Session
	cart  *Store
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := localstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sess := session.New(store)
	return &env{store: store, sess: sess, cart: New(store, sess)}
}

func (e *env) loginAs(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, e.sess.Login(context.Background(),
		"tok", models.Identity{ID: id, Username: "u", Role: models.RoleCustomer}))
}

func product(id int64, price float64) models.Product {
	return models.Product{ID: id, Name: "product", Price: price, ImageURL: "img"}
}

func TestAdd_MergesDuplicateProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.cart.Add(ctx, product(1, 9.99), 1))
	require.NoError(t, e.cart.Add(ctx, product(1, 9.99), 2))

	lines := e.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ProductID)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestAdd_RejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	assert.ErrorIs(t, e.cart.Add(ctx, product(1, 1), 0), ErrValidation)
	assert.ErrorIs(t, e.cart.Add(ctx, product(1, 1), -3), ErrValidation)
	assert.Empty(t, e.cart.Lines())
}

func TestCountAndTotal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	assert.Equal(t, 0, e.cart.Count())
	assert.Equal(t, 0.0, e.cart.Total())

	require.NoError(t, e.cart.Add(ctx, product(1, 10.00), 2))
	require.NoError(t, e.cart.Add(ctx, product(2, 5.50), 3))

	assert.Equal(t, 5, e.cart.Count())
	assert.InDelta(t, 36.50, e.cart.Total(), 1e-9)
}

func TestRemove_AbsentIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.cart.Add(ctx, product(1, 2.00), 1))
	before := e.cart.Lines()

	require.NoError(t, e.cart.Remove(ctx, 999))
	assert.Equal(t, before, e.cart.Lines())
}

func TestRemove_DeletesLine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.cart.Add(ctx, product(1, 2.00), 1))
	require.NoError(t, e.cart.Add(ctx, product(2, 3.00), 1))

	require.NoError(t, e.cart.Remove(ctx, 1))
	lines := e.cart.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(2), lines[0].ProductID)
}

func TestUpdateQuantity_ClampsToOne(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{name: "zero", requested: 0, want: 1},
		{name: "negative", requested: -5, want: 1},
		{name: "normal", requested: 4, want: 4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			e := newEnv(t)
			require.NoError(t, e.cart.Add(ctx, product(1, 1.00), 2))

			require.NoError(t, e.cart.UpdateQuantity(ctx, 1, tt.requested))
			assert.Equal(t, tt.want, e.cart.Lines()[0].Quantity)
		})
	}
}

func TestUpdateQuantity_MissingLine(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	err := e.cart.UpdateQuantity(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)

	require.NoError(t, e.cart.Add(ctx, product(1, 1.00), 1))
	require.NoError(t, e.cart.Clear(ctx))
	assert.Empty(t, e.cart.Lines())
	assert.Equal(t, 0, e.cart.Count())
}

func TestCart_SurvivesReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginAs(t, 7)

	require.NoError(t, e.cart.Add(ctx, product(1, 3.00), 2))

	// same store, fresh process
	sess2 := session.New(e.store)
	require.NoError(t, sess2.Restore(ctx))
	cart2 := New(e.store, sess2)
	require.NoError(t, cart2.Load(ctx))

	lines := cart2.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestCart_DroppedOnLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginAs(t, 7)

	require.NoError(t, e.cart.Add(ctx, product(1, 3.00), 2))
	require.NoError(t, e.sess.Logout(ctx))

	assert.Empty(t, e.cart.Lines())
	_, err := e.store.Get(ctx, localstore.KeyCart)
	assert.ErrorIs(t, err, localstore.ErrNoValue)
}

func TestLoad_IgnoresForeignSessionCart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginAs(t, 7)
	require.NoError(t, e.cart.Add(ctx, product(1, 3.00), 2))

	// a different identity restores against the same store
	sess2 := session.New(e.store)
	require.NoError(t, sess2.Login(ctx, "tok2",
		models.Identity{ID: 8, Username: "bob", Role: models.RoleCustomer}))
	cart2 := New(e.store, sess2)
	require.NoError(t, cart2.Load(ctx))

	assert.Empty(t, cart2.Lines())
}

func TestLoad_MalformedCartReadsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.store.Set(ctx, localstore.KeyCart, []byte("{broken")))

	require.NoError(t, e.cart.Load(ctx))
	assert.Empty(t, e.cart.Lines())
}
