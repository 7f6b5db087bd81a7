package checkout_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/shopfront/internal/api"
	"github.com/shopfront/shopfront/internal/cart"
	"github.com/shopfront/shopfront/internal/checkout"
	"github.com/shopfront/shopfront/internal/events"
	"github.com/shopfront/shopfront/internal/localstore"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/orders"
	"github.com/shopfront/shopfront/internal/session"
	"github.com/shopfront/shopfront/internal/shoptest"
)

type env struct {
	srv    *shoptest.Server
	store  localstore.Store
	sess   *session.Session
	cart   *cart.Store
	client *api.Client
	model  *orders.Model
	co     *checkout.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()

	srv := shoptest.New()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	store, err := localstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sess := session.New(store)
	crt := cart.New(store, sess)
	client := api.NewClient(ts.URL, sess)
	em := events.NewEmitter(nil, "", 0, slog.Default())
	model := orders.NewModel(client, sess, em)

	return &env{
		srv:    srv,
		store:  store,
		sess:   sess,
		cart:   crt,
		client: client,
		model:  model,
		co: &checkout.Coordinator{
			Sess:   sess,
			Cart:   crt,
			Client: client,
			Orders: model,
			Events: em,
		},
	}
}

func (e *env) loginCustomer(t *testing.T, username string) models.Identity {
	t.Helper()

	ctx := context.Background()
	e.srv.SeedUser(username, "pw", models.RoleCustomer)
	res, err := e.client.Login(ctx, api.Credentials{Username: username, Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, e.sess.Login(ctx, res.Token, res.User))
	return res.User
}

func TestPlaceOrder_BlankAddress(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.loginCustomer(t, "alice")
	require.NoError(t, e.cart.Add(context.Background(), models.Product{ID: 1, Name: "x", Price: 1}, 1))

	_, err := e.co.PlaceOrder(context.Background(), "   ", "")
	assert.ErrorIs(t, err, checkout.ErrValidation)
	assert.Contains(t, err.Error(), "shipping address")
}

func TestPlaceOrder_EmptyCart_NoNetworkCall(t *testing.T) {
	t.Parallel()

	// client pointed at a dead address: any network attempt would surface as
	// a service failure, not a validation error
	store, err := localstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sess := session.New(store)
	require.NoError(t, sess.Login(context.Background(), "tok",
		models.Identity{ID: 7, Username: "alice", Role: models.RoleCustomer}))
	crt := cart.New(store, sess)
	client := api.NewClient("http://127.0.0.1:1", sess)

	co := &checkout.Coordinator{
		Sess:   sess,
		Cart:   crt,
		Client: client,
		Orders: orders.NewModel(client, sess, nil),
	}

	_, err = co.PlaceOrder(context.Background(), "12 Main St", "")
	assert.ErrorIs(t, err, checkout.ErrValidation)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestPlaceOrder_RequiresIdentity(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	// cart filled while logged out
	require.NoError(t, e.cart.Add(context.Background(), models.Product{ID: 1, Name: "x", Price: 1}, 1))

	_, err := e.co.PlaceOrder(context.Background(), "12 Main St", "")
	assert.ErrorIs(t, err, checkout.ErrValidation)
	assert.Contains(t, err.Error(), "login required")
}

func TestPlaceOrder_RemoteFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginCustomer(t, "alice")

	require.NoError(t, e.cart.Add(ctx, models.Product{ID: 1, Name: "Mug", Price: 4.50}, 2))
	before := e.cart.Lines()
	mirrorBefore := e.model.Orders()

	e.srv.FailOrders = true

	_, err := e.co.PlaceOrder(ctx, "12 Main St", "555-0100")
	require.Error(t, err)
	assert.True(t, api.Retryable(err))

	assert.Equal(t, before, e.cart.Lines())
	assert.Equal(t, mirrorBefore, e.model.Orders())

	// retry succeeds against the recovered service with the same cart
	e.srv.FailOrders = false
	order, err := e.co.PlaceOrder(ctx, "12 Main St", "555-0100")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, order.Status)
}

func TestPlaceOrder_Success(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	user := e.loginCustomer(t, "alice")

	require.NoError(t, e.cart.Add(ctx, models.Product{ID: 1, Name: "Mug", Price: 10.00}, 2))
	require.NoError(t, e.cart.Add(ctx, models.Product{ID: 2, Name: "Poster", Price: 5.50}, 3))

	order, err := e.co.PlaceOrder(ctx, "12 Main St", "555-0100")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, order.Status)
	assert.Equal(t, user.ID, order.UserID)
	assert.InDelta(t, 36.50, order.TotalAmount, 1e-9)
	assert.Equal(t, "12 Main St", order.ShippingAddress)

	// cart cleared, in memory and on disk
	assert.Empty(t, e.cart.Lines())
	raw, err := e.store.Get(ctx, localstore.KeyCart)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"lines":null`)

	// mirrored locally and persisted remotely
	mirrored, err := e.model.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, mirrored.Status)

	remote, ok := e.srv.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, remote.Status)
}

func TestPlaceOrder_NotIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginCustomer(t, "alice")

	require.NoError(t, e.cart.Add(ctx, models.Product{ID: 1, Name: "Mug", Price: 2}, 1))
	first, err := e.co.PlaceOrder(ctx, "12 Main St", "")
	require.NoError(t, err)

	require.NoError(t, e.cart.Add(ctx, models.Product{ID: 1, Name: "Mug", Price: 2}, 1))
	second, err := e.co.PlaceOrder(ctx, "12 Main St", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

// End-to-end flow: login, add the same product twice, verify the merged
// line, check out, observe the pending order.
func TestCheckoutFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t)
	e.loginCustomer(t, "alice")

	p := models.Product{ID: 31, Name: "Teapot", Price: 12.00}
	require.NoError(t, e.cart.Add(ctx, p, 1))
	require.NoError(t, e.cart.Add(ctx, p, 2))

	lines := e.cart.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 3, lines[0].Quantity)

	order, err := e.co.PlaceOrder(ctx, "12 Main St", "")
	require.NoError(t, err)

	assert.Empty(t, e.cart.Lines())
	assert.Equal(t, orders.StatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 3, order.Items[0].Quantity)
}
