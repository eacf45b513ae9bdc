// Package demo is the orders walkthrough: a small catalogue with
// system-versioned customers, products and orders, seeded with a price
// history and queried through every temporal root.
package demo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dragos-durlut/TemporalTables/internal/query"
	"github.com/dragos-durlut/TemporalTables/internal/queryir"
	"github.com/dragos-durlut/TemporalTables/internal/store"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// keySpace derives stable demo keys, so runs print the same identifiers.
var keySpace = uuid.MustParse("6f1c9a52-3d0e-4c39-9a8e-2b7d5f0c1e44")

func key(name string) uuid.UUID { return uuid.NewSHA1(keySpace, []byte(name)) }

// Demo runs the walkthrough against a store opened on the demo model.
type Demo struct {
	store   *store.Store
	session *query.Session
	out     io.Writer
	logger  *slog.Logger

	sessionOpts []query.Option
}

// Option configures a Demo.
type Option func(*Demo)

// WithLogger sets the logger for demo milestones.
func WithLogger(l *slog.Logger) Option {
	return func(d *Demo) { d.logger = l }
}

// WithSessionOptions passes options to the query session.
func WithSessionOptions(opts ...query.Option) Option {
	return func(d *Demo) { d.sessionOpts = append(d.sessionOpts, opts...) }
}

// New returns a demo printing to out. The store must have been opened with
// the model returned by Model.
func New(st *store.Store, out io.Writer, opts ...Option) (*Demo, error) {
	d := &Demo{store: st, out: out, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	session, err := query.NewSession(st, append([]query.Option{query.WithLogger(d.logger)}, d.sessionOpts...)...)
	if err != nil {
		return nil, err
	}
	d.session = session
	return d, nil
}

// Session returns the query session the demo reads through.
func (d *Demo) Session() *query.Session { return d.session }

// Run seeds the database and runs every scenario in order.
func (d *Demo) Run(ctx context.Context) error {
	at, err := d.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"lookup current price", func() error { _, err := d.LookupCurrentPrice(ctx, "DeLorean"); return err }},
		{"lookup prices", func() error { _, err := d.LookupPrices(ctx, "DeLorean", at[1], at[3]); return err }},
		{"find order", func() error { _, err := d.FindOrder(ctx, "Arthur", at[3]); return err }},
		{"delete customer", func() error { _, err := d.DeleteCustomer(ctx, "Arthur"); return err }},
		{"snapshots", func() error { _, _, err := d.Snapshots(ctx); return err }},
		{"restore customer", func() error { _, err := d.RestoreCustomer(ctx, "Arthur"); return err }},
		{"snapshots", func() error { _, _, err := d.Snapshots(ctx); return err }},
		{"everything as of", func() error { _, err := d.EverythingAsOf(ctx, at[len(at)-1]); return err }},
		{"unsupported navigations", func() error { return d.UnsupportedNavigations(ctx) }},
	}
	for _, s := range steps {
		d.logger.Info("scenario", "name", s.name)
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Seed creates the schema and the catalogue, then changes the DeLorean's
// price five times. It returns the instant of each of the six writes.
func (d *Demo) Seed(ctx context.Context) ([]time.Time, error) {
	if err := d.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var classes []any
	for i, id := range []int64{111, 112, 113} {
		classes = append(classes, &ProductClass{ID: id, Name: fmt.Sprintf("Product Class %d", i+1)})
	}
	var types []any
	for _, id := range []int64{11, 12, 13, 21, 22, 23, 31, 32, 33} {
		types = append(types, &ProductType{
			ID:             id,
			Name:           fmt.Sprintf("Product Type %d", id),
			ProductClassID: 111 + (id%10 - 1),
		})
	}

	customer := &Customer{ID: key("customer/Arthur"), Name: "Arthur"}
	delorean := &Product{ID: key("product/DeLorean"), Name: "DeLorean", Price: 1_000_000, ProductTypeID: 11}
	products := []any{
		delorean,
		&Product{ID: key("product/Flux Capacitor"), Name: "Flux Capacitor", Price: 666, ProductTypeID: 12},
		&Product{ID: key("product/Hoverboard"), Name: "Hoverboard", Price: 59_000, ProductTypeID: 13},
	}

	var at []time.Time
	record := func(t time.Time, err error) error {
		if err != nil {
			return err
		}
		at = append(at, t)
		return nil
	}

	initial := append(append(append(classes, types...), customer), products...)
	if err := record(d.store.Insert(ctx, initial...)); err != nil {
		return nil, err
	}
	for _, price := range []float64{2_000_000, 2_500_000} {
		delorean.Price = price
		if err := record(d.store.Update(ctx, delorean)); err != nil {
			return nil, err
		}
	}

	order := &Order{ID: key("order/1"), OrderDate: at[len(at)-1], CustomerID: customer.ID, ProductID: delorean.ID}
	if err := record(d.store.Insert(ctx, order)); err != nil {
		return nil, err
	}

	for _, price := range []float64{75_000, 150_000} {
		delorean.Price = price
		if err := record(d.store.Update(ctx, delorean)); err != nil {
			return nil, err
		}
	}

	d.logger.Info("seeded", "writes", len(at))
	return at, nil
}

// LookupCurrentPrice reads the current version of a product.
func (d *Demo) LookupCurrentPrice(ctx context.Context, name string) (*Product, error) {
	got, err := d.session.MustSet("Product").
		Where(queryir.Equals{Property: "Name", Value: name}).
		Single(ctx)
	if err != nil {
		return nil, err
	}
	p := got.(*Product)
	fmt.Fprintf(d.out, "The '%s' with PK %s is currently $%.2f.\n\n", p.Name, p.ID, p.Price)
	return p, nil
}

// LookupPrices lists every version of a product valid during [from, to),
// oldest first.
func (d *Demo) LookupPrices(ctx context.Context, name string, from, to time.Time) ([]*Product, error) {
	fmt.Fprintf(d.out, "Historical prices for %s from %s to %s:\n", name, stamp(from), stamp(to))

	versions, err := query.List[Product](ctx, d.session.MustSet("Product").
		FromTo(from, to).
		OrderBy(temporal.PeriodStartName).
		Where(queryir.Equals{Property: "Name", Value: name}))
	if err != nil {
		return nil, err
	}
	for _, p := range versions {
		fmt.Fprintf(d.out, "  The '%s' with PK %s was $%.2f from %s until %s.\n",
			p.Name, p.ID, p.Price, stamp(p.ValidFrom()), stamp(p.ValidTo()))
	}
	fmt.Fprintln(d.out)
	return versions, nil
}

// FindOrder finds the order a customer placed on the day of on, with its
// product and customer as they were at that instant.
func (d *Demo) FindOrder(ctx context.Context, customerName string, on time.Time) (*Order, error) {
	orders, err := query.List[Order](ctx, d.session.MustSet("Order").
		AsOf(on).
		Include("Product").
		Include("Customer"))
	if err != nil {
		return nil, err
	}

	day := on.UTC().Truncate(24 * time.Hour)
	var found []*Order
	for _, o := range orders {
		if o.Customer != nil && o.Customer.Name == customerName &&
			o.OrderDate.After(day) && o.OrderDate.Before(day.Add(24*time.Hour)) {
			found = append(found, o)
		}
	}
	if len(found) != 1 {
		return nil, fmt.Errorf("found %d orders of %s on %s, expected exactly one", len(found), customerName, day.Format(time.DateOnly))
	}

	o := found[0]
	fmt.Fprintf(d.out, "%s ordered a %s for $%.2f on %s\n\n", o.Customer.Name, o.Product.Name, o.Product.Price, stamp(o.OrderDate))
	return o, nil
}

// DeleteCustomer deletes a customer and its orders in one change set.
func (d *Demo) DeleteCustomer(ctx context.Context, name string) (time.Time, error) {
	got, err := d.session.MustSet("Customer").
		Where(queryir.Equals{Property: "Name", Value: name}).
		Include("Orders").
		Single(ctx)
	if err != nil {
		return time.Time{}, err
	}
	c := got.(*Customer)

	var doomed []any
	for _, o := range c.Orders {
		doomed = append(doomed, o)
	}
	doomed = append(doomed, c)
	at, err := d.store.Delete(ctx, doomed...)
	if err != nil {
		return time.Time{}, err
	}
	d.logger.Info("customer deleted", "customer", name, "orders", len(c.Orders), "at", stamp(at))
	return at, nil
}

// RestoreCustomer finds when a deleted customer's last version ended and
// re-inserts the customer and its orders as they were just before.
func (d *Demo) RestoreCustomer(ctx context.Context, name string) (*Customer, error) {
	versions, err := query.List[Customer](ctx, d.session.MustSet("Customer").
		All().
		Where(queryir.Equals{Property: "Name", Value: name}).
		OrderBy(temporal.PeriodEndName))
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("customer %s has no history", name)
	}
	deletedOn := versions[len(versions)-1].ValidTo()
	if deletedOn.Equal(temporal.OpenEnd) {
		return nil, fmt.Errorf("customer %s is not deleted", name)
	}

	got, err := d.session.MustSet("Customer").
		AsOf(deletedOn.Add(-time.Millisecond)).
		Where(queryir.Equals{Property: "Name", Value: name}).
		Include("Orders").
		Single(ctx)
	if err != nil {
		return nil, err
	}
	c := got.(*Customer)

	restored := []any{c}
	for _, o := range c.Orders {
		restored = append(restored, o)
	}
	at, err := d.store.Insert(ctx, restored...)
	if err != nil {
		return nil, err
	}
	d.logger.Info("customer restored", "customer", name, "orders", len(c.Orders), "at", stamp(at))
	return c, nil
}

// Snapshots prints every version of every customer and order.
func (d *Demo) Snapshots(ctx context.Context) ([]*Customer, []*Order, error) {
	customers, err := query.List[Customer](ctx, d.session.MustSet("Customer").All().OrderBy(temporal.PeriodStartName))
	if err != nil {
		return nil, nil, err
	}
	for _, c := range customers {
		fmt.Fprintf(d.out, "The customer '%s' existed from %s until %s.\n", c.Name, stamp(c.ValidFrom()), stamp(c.ValidTo()))
	}
	fmt.Fprintln(d.out)

	orders, err := query.List[Order](ctx, d.session.MustSet("Order").All().OrderBy(temporal.PeriodStartName))
	if err != nil {
		return nil, nil, err
	}
	for _, o := range orders {
		fmt.Fprintf(d.out, "The order with ID '%s' existed from %s until %s.\n", o.ID, stamp(o.ValidFrom()), stamp(o.ValidTo()))
	}
	fmt.Fprintln(d.out)
	return customers, orders, nil
}

// EverythingAsOf loads products at t with their orders, the orders'
// customers and the product catalogue. The catalogue is not temporal and
// reads its current rows.
func (d *Demo) EverythingAsOf(ctx context.Context, t time.Time) ([]*Product, error) {
	products, err := query.List[Product](ctx, d.session.MustSet("Product").
		AsOf(t).
		Include("Orders.Customer").
		Include("ProductType.ProductClass"))
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(d.out, "Products as of %s:\n", stamp(t))
	for _, p := range products {
		fmt.Fprintf(d.out, "  %s ($%.2f, %s / %s) with %d order(s)\n",
			p.Name, p.Price, p.ProductType.Name, p.ProductType.ProductClass.Name, len(p.Orders))
	}
	fmt.Fprintln(d.out)
	return products, nil
}

// UnsupportedNavigations shows the two rejections of includes under an All
// root. Both fail before the database is read.
func (d *Demo) UnsupportedNavigations(ctx context.Context) error {
	cases := []struct {
		query *query.Query
		check func(error) bool
	}{
		{d.session.MustSet("Product").All().Include("ProductType"), temporal.IsUnsupportedTemporalNavigation},
		{d.session.MustSet("Customer").All().Include("Orders"), temporal.IsTemporalNavigationMode},
	}
	for _, c := range cases {
		_, err := c.query.Load(ctx)
		if err == nil || !c.check(err) {
			return fmt.Errorf("%s: expected a temporal navigation error, got %v", c.query, err)
		}
		fmt.Fprintf(d.out, "%s: %v\n", c.query, err)
	}
	fmt.Fprintln(d.out)
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
