package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopfront/shopfront/internal/api"
	"github.com/shopfront/shopfront/internal/cart"
	"github.com/shopfront/shopfront/internal/checkout"
	"github.com/shopfront/shopfront/internal/config"
	"github.com/shopfront/shopfront/internal/events"
	"github.com/shopfront/shopfront/internal/localstore"
	"github.com/shopfront/shopfront/internal/logging"
	"github.com/shopfront/shopfront/internal/models"
	"github.com/shopfront/shopfront/internal/orders"
	"github.com/shopfront/shopfront/internal/session"
)

const usage = `usage: shopfront <command> [flags]

  login -u <user> -p <password>       authenticate and persist the session
  register -u <user> -p <password>    create an account (also -name -email -address -phone)
  logout                              clear session, credential and cart
  whoami                              show the active identity
  products [-search kw | -category n] browse the catalog
  categories                          list categories
  cart show|add|set|rm|clear          manage the cart (-id, -qty)
  checkout -address <addr> [-phone n] place an order from the cart
  orders [-all]                       list my orders (-all: every order, admin)
  order-status -id <n> -status <s>    admin: move an order to a new status
`

type app struct {
	cfg      *config.Config
	sess     *session.Session
	cart     *cart.Store
	client   *api.Client
	orders   *orders.Model
	checkout *checkout.Coordinator
	events   *events.Emitter
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := logging.IntoContext(context.Background(), logger)

	store, err := localstore.Open(ctx, cfg.StoreDSN)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}
	defer store.Close()

	if cfg.StoreKey != "" {
		key, err := localstore.KeyFromHex(cfg.StoreKey)
		if err != nil {
			log.Fatalf("store key: %v", err)
		}
		if store, err = localstore.Sealed(store, key); err != nil {
			log.Fatalf("store key: %v", err)
		}
	}

	sess := session.New(store)
	if err := sess.Restore(ctx); err != nil {
		log.Fatalf("restore session: %v", err)
	}

	crt := cart.New(store, sess)
	if err := crt.Load(ctx); err != nil {
		log.Fatalf("load cart: %v", err)
	}

	em := events.NewEmitter(cfg.KafkaBrokers, cfg.KafkaTopic, 64, logger)
	em.Start(ctx)
	defer func() {
		em.Close()
		em.WaitClosed()
	}()

	client := api.NewClient(cfg.ShopURL, sess)
	model := orders.NewModel(client, sess, em)
	model.Permissive = cfg.PermissiveTransitions

	a := &app{
		cfg:    cfg,
		sess:   sess,
		cart:   crt,
		client: client,
		orders: model,
		events: em,
		checkout: &checkout.Coordinator{
			Sess:   sess,
			Cart:   crt,
			Client: client,
			Orders: model,
			Events: em,
		},
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "shopfront: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		return a.sess.Logout(ctx)
	case "whoami":
		return a.whoami()
	case "products":
		return a.products(ctx, args)
	case "categories":
		return a.categories(ctx)
	case "cart":
		return a.cartCmd(ctx, args)
	case "checkout":
		return a.checkoutCmd(ctx, args)
	case "orders":
		return a.ordersCmd(ctx, args)
	case "order-status":
		return a.orderStatus(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	fs.Parse(args)

	res, err := a.client.Login(ctx, api.Credentials{Username: *user, Password: *pass})
	if err != nil {
		return err
	}
	if err := a.sess.Login(ctx, res.Token, res.User); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", res.User.Username, res.User.Role)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	req := api.RegisterRequest{}
	fs.StringVar(&req.Username, "u", "", "username")
	fs.StringVar(&req.Password, "p", "", "password")
	fs.StringVar(&req.FullName, "name", "", "full name")
	fs.StringVar(&req.Email, "email", "", "email")
	fs.StringVar(&req.Address, "address", "", "address")
	fs.StringVar(&req.Phone, "phone", "", "phone")
	fs.Parse(args)

	res, err := a.client.Register(ctx, req)
	if err != nil {
		return err
	}
	if err := a.sess.Login(ctx, res.Token, res.User); err != nil {
		return err
	}
	fmt.Printf("registered as %s\n", res.User.Username)
	return nil
}

func (a *app) whoami() error {
	id := a.sess.CurrentIdentity()
	if id == nil {
		fmt.Println("not logged in")
		return nil
	}
	fmt.Printf("%s (#%d, %s)\n", id.Username, id.ID, id.Role)
	return nil
}

func (a *app) products(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ExitOnError)
	search := fs.String("search", "", "keyword")
	category := fs.Int64("category", 0, "category id")
	fs.Parse(args)

	var (
		list []models.Product
		err  error
	)
	switch {
	case *search != "":
		list, err = a.client.SearchProducts(ctx, *search)
	case *category != 0:
		list, err = a.client.ProductsByCategory(ctx, *category)
	default:
		list, err = a.client.Products(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK")
	for _, p := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.ID, p.Name, models.FormatAmount(p.Price), p.Stock)
	}
	return w.Flush()
}

func (a *app) categories(ctx context.Context) error {
	list, err := a.client.Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range list {
		fmt.Printf("%d\t%s\n", c.ID, c.Name)
	}
	return nil
}

func (a *app) cartCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("cart "+sub, flag.ExitOnError)
	id := fs.Int64("id", 0, "product id")
	qty := fs.Int("qty", 1, "quantity")
	fs.Parse(rest)

	switch sub {
	case "show":
		lines := a.cart.Lines()
		if len(lines) == 0 {
			fmt.Println("cart is empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRODUCT\tPRICE\tQTY\tTOTAL")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				l.ProductName, models.FormatAmount(l.Price), l.Quantity, models.FormatAmount(l.LineTotal()))
		}
		fmt.Fprintf(w, "\t\t%d\t%s\n", a.cart.Count(), models.FormatAmount(a.cart.Total()))
		return w.Flush()
	case "add":
		p, err := a.client.Product(ctx, *id)
		if err != nil {
			return err
		}
		if err := a.cart.Add(ctx, *p, *qty); err != nil {
			return err
		}
		fmt.Printf("added %s x%d\n", p.Name, *qty)
		return nil
	case "set":
		return a.cart.UpdateQuantity(ctx, *id, *qty)
	case "rm":
		return a.cart.Remove(ctx, *id)
	case "clear":
		return a.cart.Clear(ctx)
	default:
		return fmt.Errorf("unknown cart subcommand %q", sub)
	}
}

func (a *app) checkoutCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	address := fs.String("address", "", "shipping address")
	phone := fs.String("phone", "", "phone number")
	fs.Parse(args)

	if *phone == "" {
		if id := a.sess.CurrentIdentity(); id != nil {
			*phone = id.Phone
		}
	}

	order, err := a.checkout.PlaceOrder(ctx, *address, *phone)
	if err != nil {
		if api.Retryable(err) {
			return fmt.Errorf("%w (cart kept, retry when the service is back)", err)
		}
		return err
	}
	fmt.Printf("order #%d placed, status %s, total %s\n",
		order.ID, order.Status, models.FormatAmount(order.TotalAmount))
	return nil
}

func (a *app) ordersCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	all := fs.Bool("all", false, "every order (admin)")
	fs.Parse(args)

	var err error
	if *all {
		err = a.orders.RefreshAll(ctx)
	} else {
		err = a.orders.RefreshMine(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tDATE\tSTATUS\tTOTAL")
	for _, o := range a.orders.Orders() {
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\n",
			o.ID, o.OrderDate.Format("2006-01-02"), o.Status, models.FormatAmount(o.TotalAmount))
	}
	return w.Flush()
}

func (a *app) orderStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("order-status", flag.ExitOnError)
	id := fs.Int64("id", 0, "order id")
	status := fs.String("status", "", "one of "+strings.Join(orders.All, ", "))
	fs.Parse(args)

	order, err := a.orders.Transition(ctx, *id, strings.ToUpper(*status))
	if err != nil {
		return err
	}
	fmt.Printf("order #%d is now %s\n", order.ID, order.Status)
	return nil
}
