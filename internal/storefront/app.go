package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"plant-store/internal/cart"
	"plant-store/internal/checkout"
	"plant-store/internal/client"
	"plant-store/internal/domain"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// SessionKey is the storage key holding the logged-in session
const SessionKey = "session"

var ErrUsage = errors.New("usage error")

// API is the subset of the HTTP client the storefront commands use
type API interface {
	checkout.OrderService
	ListProducts(ctx context.Context, category string) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	Register(ctx context.Context, name, email, password string) (*client.Session, error)
	Login(ctx context.Context, email, password string) (*client.Session, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, token, refreshToken string) error
	Me(ctx context.Context, token string) (*client.User, error)
	ListOrders(ctx context.Context, token string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id, token string) (*domain.Order, error)
}

// App runs storefront commands against one cart and one API
type App struct {
	api       API
	storage   cart.Storage
	cart      *cart.Engine
	submitter *checkout.Submitter
	session   client.Session
	out       io.Writer
	logger    *zap.Logger
}

// New rehydrates the cart and the saved session from storage. A non-empty
// token overrides the saved session and cannot be refreshed.
func New(ctx context.Context, api API, storage cart.Storage, token string, out io.Writer, logger *zap.Logger) *App {
	engine := cart.NewEngine(ctx, storage, logger)
	app := &App{
		api:       api,
		storage:   storage,
		cart:      engine,
		submitter: checkout.NewSubmitter(engine, api, logger),
		out:       out,
		logger:    logger,
	}
	if token != "" {
		app.session = client.Session{Token: token}
	} else {
		app.session = app.savedSession(ctx)
	}
	return app
}

// Cart exposes the engine backing the app
func (a *App) Cart() *cart.Engine {
	return a.cart
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

func (a *App) commands() map[string]command {
	return map[string]command{
		"products":   {"products [--category NAME] [--search TEXT]", a.products},
		"product":    {"product ID", a.product},
		"categories": {"categories", a.categories},
		"add":        {"add ID [--qty N]", a.add},
		"remove":     {"remove ID", a.remove},
		"set":        {"set ID QTY", a.set},
		"clear":      {"clear", a.clear},
		"cart":       {"cart", a.show},
		"refresh":    {"refresh", a.refresh},
		"checkout":   {"checkout --name N --email E --address A --city C --zip Z [--phone P]", a.checkout},
		"register":   {"register --name N --email E --password P", a.register},
		"login":      {"login --email E --password P", a.login},
		"logout":     {"logout", a.logout},
		"whoami":     {"whoami", a.whoami},
		"orders":     {"orders [ID]", a.orders},
	}
}

// Run executes one command. args[0] is the command name.
func (a *App) Run(ctx context.Context, args []string) error {
	cmds := a.commands()
	if len(args) == 0 {
		a.usage(cmds)
		return ErrUsage
	}

	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(a.out, "unknown command %q\n", args[0])
		a.usage(cmds)
		return ErrUsage
	}

	a.logger.Debug("Running command", zap.String("command", args[0]))
	return cmd.run(ctx, args[1:])
}

func (a *App) usage(cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(a.out, "Usage: storefront [global flags] COMMAND")
	for _, name := range names {
		fmt.Fprintf(a.out, "  %s\n", cmds[name].usage)
	}
}

func (a *App) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) products(ctx context.Context, args []string) error {
	fs := a.flagSet("products")
	category := fs.StringP("category", "c", "", "only list products in this category")
	search := fs.StringP("search", "s", "", "search names and descriptions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var products []domain.Product
	var err error
	if *search != "" {
		products, err = a.api.SearchProducts(ctx, *search)
	} else {
		products, err = a.api.ListProducts(ctx, *category)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, p := range products {
		stock := strconv.Itoa(p.Stock)
		if !p.InStock() {
			stock = "sold out"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2), stock)
	}
	return tw.Flush()
}

func (a *App) product(ctx context.Context, args []string) error {
	id, err := productID(args)
	if err != nil {
		return err
	}
	p, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (#%d)\n%s\nCategory: %s\nPrice: $%s\nIn stock: %d\n",
		p.Name, p.ID, p.Description, p.Category, p.Price.StringFixed(2), p.Stock)
	return nil
}

func (a *App) categories(ctx context.Context, _ []string) error {
	categories, err := a.api.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Fprintln(a.out, c)
	}
	return nil
}

func (a *App) add(ctx context.Context, args []string) error {
	fs := a.flagSet("add")
	qty := fs.IntP("qty", "q", 1, "quantity to add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := productID(fs.Args())
	if err != nil {
		return err
	}

	p, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	a.cart.Add(ctx, *p, *qty)

	fmt.Fprintf(a.out, "Added %s to cart (%d items)\n", p.Name, a.cart.ItemCount())
	return nil
}

func (a *App) remove(ctx context.Context, args []string) error {
	id, err := productID(args)
	if err != nil {
		return err
	}
	a.cart.Remove(ctx, id)
	return a.show(ctx, nil)
}

func (a *App) set(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: set ID QTY", ErrUsage)
	}
	id, err := productID(args[:1])
	if err != nil {
		return err
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: quantity must be a number", ErrUsage)
	}
	a.cart.SetQuantity(ctx, id, qty)
	return a.show(ctx, nil)
}

func (a *App) clear(ctx context.Context, _ []string) error {
	a.cart.Clear(ctx)
	fmt.Fprintln(a.out, "Cart cleared")
	return nil
}

func (a *App) show(_ context.Context, _ []string) error {
	lines := a.cart.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(a.out, "Your cart is empty")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tQTY\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", l.ID, l.Name, l.Price.StringFixed(2), l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t\t%d\t%s\n", a.cart.ItemCount(), a.cart.Total().StringFixed(2))
	return tw.Flush()
}

func (a *App) checkout(ctx context.Context, args []string) error {
	fs := a.flagSet("checkout")
	var info checkout.ShippingInfo
	fs.StringVar(&info.Name, "name", "", "full name")
	fs.StringVar(&info.Email, "email", "", "email address")
	fs.StringVar(&info.Address, "address", "", "street address")
	fs.StringVar(&info.City, "city", "", "city")
	fs.StringVar(&info.ZipCode, "zip", "", "zip code")
	fs.StringVar(&info.Phone, "phone", "", "phone number (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var result *checkout.Result
	err := a.withSession(ctx, func(token string) error {
		var err error
		result, err = a.submitter.Submit(ctx, info, token)
		return err
	})

	var conflict *checkout.StockConflictError
	var verr *checkout.ValidationError
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "Order %s placed. Total: $%s\n", result.OrderID, result.Total.StringFixed(2))
		return nil
	case errors.As(err, &verr):
		for _, f := range verr.Fields {
			fmt.Fprintf(a.out, "  %s %s\n", f.Field, f.Message)
		}
	case errors.As(err, &conflict):
		for _, reason := range conflict.Reasons {
			fmt.Fprintf(a.out, "  %s\n", reason)
		}
		if conflict.Applied {
			fmt.Fprintln(a.out, "Your cart was updated to match available stock. Review it and check out again.")
			if err := a.show(ctx, nil); err != nil {
				a.logger.Warn("Failed to print cart", zap.Error(err))
			}
		}
	case errors.Is(err, checkout.ErrUnauthorized):
		fmt.Fprintln(a.out, "Your session has expired. Log in again or remove STOREFRONT_TOKEN to order as a guest.")
	case errors.Is(err, checkout.ErrTotalMismatch):
		fmt.Fprintln(a.out, "Prices changed since the products were added. Updating your cart...")
		if err := a.refresh(ctx, nil); err != nil {
			a.logger.Warn("Failed to refresh cart", zap.Error(err))
			fmt.Fprintln(a.out, "Run \"storefront refresh\" to update prices, then check out again.")
			break
		}
		fmt.Fprintln(a.out, "Review the new total and check out again.")
	}
	return err
}

// refresh re-reads every cart line from the catalog so the cart carries
// current names, prices and stock. Products no longer sold leave the cart.
func (a *App) refresh(ctx context.Context, _ []string) error {
	lines := a.cart.Lines()
	products := make([]domain.Product, 0, len(lines))
	var gone []int64
	for _, l := range lines {
		p, err := a.api.GetProduct(ctx, l.ID)
		switch {
		case errors.Is(err, client.ErrNotFound):
			fmt.Fprintf(a.out, "%s is no longer available and was removed\n", l.Name)
			gone = append(gone, l.ID)
		case err != nil:
			return err
		default:
			if !p.Price.Equal(l.Price) {
				fmt.Fprintf(a.out, "%s now costs $%s (was $%s)\n", p.Name, p.Price.StringFixed(2), l.Price.StringFixed(2))
			}
			products = append(products, *p)
		}
	}

	a.cart.Refresh(ctx, products, gone)
	return a.show(ctx, nil)
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := a.flagSet("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (min 6 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.api.Register(ctx, *name, *email, *password)
	if err != nil {
		return err
	}
	a.saveSession(ctx, session)
	fmt.Fprintf(a.out, "Welcome, %s\n", session.User.Name)
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session, err := a.api.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	a.saveSession(ctx, session)
	fmt.Fprintf(a.out, "Logged in as %s\n", session.User.Email)
	return nil
}

// logout revokes the session on the server, then forgets it locally. The
// local session is dropped even when the server cannot be reached.
func (a *App) logout(ctx context.Context, _ []string) error {
	var err error
	if a.session.Token != "" && a.session.RefreshToken != "" {
		refreshToken := a.session.RefreshToken
		err = a.withSession(ctx, func(token string) error {
			return a.api.Logout(ctx, token, refreshToken)
		})
	}
	a.saveSession(ctx, &client.Session{})

	if err != nil && !errors.Is(err, checkout.ErrUnauthorized) {
		fmt.Fprintln(a.out, "Logged out on this device; the server session could not be revoked")
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) whoami(ctx context.Context, _ []string) error {
	if a.session.Token == "" {
		fmt.Fprintln(a.out, "Not logged in, orders are placed as a guest")
		return nil
	}
	var user *client.User
	err := a.withSession(ctx, func(token string) error {
		var err error
		user, err = a.api.Me(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", user.Name, user.Email, user.Role)
	return nil
}

func (a *App) orders(ctx context.Context, args []string) error {
	if len(args) == 1 {
		var order *domain.Order
		err := a.withSession(ctx, func(token string) error {
			var err error
			order, err = a.api.GetOrder(ctx, args[0], token)
			return err
		})
		if err != nil {
			return err
		}
		a.printOrder(order)
		return nil
	}

	var orders []domain.Order
	err := a.withSession(ctx, func(token string) error {
		var err error
		orders, err = a.api.ListOrders(ctx, token)
		return err
	})
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(a.out, "No orders yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02"), o.Status, o.Total.StringFixed(2))
	}
	return tw.Flush()
}

func (a *App) printOrder(o *domain.Order) {
	fmt.Fprintf(a.out, "Order %s (%s)\nShip to: %s, %s, %s %s\n",
		o.ID, o.Status, o.CustomerName, o.Shipping.Address, o.Shipping.City, o.Shipping.ZipCode)
	for _, item := range o.Items {
		fmt.Fprintf(a.out, "  %d x %s @ $%s\n", item.Quantity, item.Name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(a.out, "Total: $%s\n", o.Total.StringFixed(2))
}

// withSession calls fn with the current access token. When the server
// rejects it and a refresh token is saved, the session is refreshed once and
// fn is retried with the new token.
func (a *App) withSession(ctx context.Context, fn func(token string) error) error {
	err := fn(a.session.Token)
	if !errors.Is(err, checkout.ErrUnauthorized) || a.session.RefreshToken == "" {
		return err
	}

	token, rerr := a.api.Refresh(ctx, a.session.RefreshToken)
	if rerr != nil {
		a.logger.Info("Session refresh failed", zap.Error(rerr))
		return err
	}
	a.logger.Debug("Session refreshed")

	refreshed := a.session
	refreshed.Token = token
	a.saveSession(ctx, &refreshed)
	return fn(token)
}

func (a *App) savedSession(ctx context.Context) client.Session {
	data, err := a.storage.Get(ctx, SessionKey)
	if err != nil {
		return client.Session{}
	}
	var session client.Session
	if err := json.Unmarshal(data, &session); err != nil {
		a.logger.Warn("Stored session is corrupt, ignoring", zap.Error(err))
		return client.Session{}
	}
	return session
}

func (a *App) saveSession(ctx context.Context, session *client.Session) {
	a.session = *session
	data, err := json.Marshal(session)
	if err != nil {
		a.logger.Error("Failed to encode session", zap.Error(err))
		return
	}
	if err := a.storage.Set(ctx, SessionKey, data); err != nil {
		a.logger.Warn("Failed to persist session", zap.Error(err))
	}
}

func productID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one product id", ErrUsage)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid product id %q", ErrUsage, args[0])
	}
	return id, nil
}
