package query

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/store"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
	"github.com/dragos-durlut/TemporalTables/internal/testutil"
)

type customer struct {
	temporal.Period
	ID     uuid.UUID
	Name   string
	Orders []*order
}

type order struct {
	temporal.Period
	ID         uuid.UUID
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	Quantity   int
	Customer   *customer
	Product    *product
}

type product struct {
	temporal.Period
	ID            uuid.UUID
	Name          string
	Price         float64
	ProductTypeID int64
	ProductType   *productType
	Orders        []*order
}

type productType struct {
	ID   int64
	Name string
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	temporalTable := func(name string) *model.Table {
		return &model.Table{Name: name, Temporal: &model.TemporalTable{}}
	}
	m, err := model.New(
		&model.EntityType{
			Name:       "Customer",
			GoType:     model.TypeOf[customer](),
			Table:      temporalTable("Customers"),
			Properties: []*model.Property{{Name: "ID", Key: true}, {Name: "Name"}},
			Navigations: []*model.Navigation{
				{Name: "Orders", Target: "Order", ForeignKey: "CustomerID", Collection: true},
			},
		},
		&model.EntityType{
			Name:   "Order",
			GoType: model.TypeOf[order](),
			Table:  temporalTable("Orders"),
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "CustomerID"},
				{Name: "ProductID"},
				{Name: "Quantity"},
			},
			Navigations: []*model.Navigation{
				{Name: "Customer", Target: "Customer", ForeignKey: "CustomerID"},
				{Name: "Product", Target: "Product", ForeignKey: "ProductID"},
			},
		},
		&model.EntityType{
			Name:   "Product",
			GoType: model.TypeOf[product](),
			Table:  temporalTable("Products"),
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
				{Name: "Price"},
				{Name: "ProductTypeID"},
			},
			Navigations: []*model.Navigation{
				{Name: "ProductType", Target: "ProductType", ForeignKey: "ProductTypeID"},
				{Name: "Orders", Target: "Order", ForeignKey: "ProductID", Collection: true},
			},
		},
		&model.EntityType{
			Name:       "ProductType",
			GoType:     model.TypeOf[productType](),
			Table:      &model.Table{Name: "ProductTypes"},
			Properties: []*model.Property{{Name: "ID", Key: true}, {Name: "Name"}},
		},
	)
	require.NoError(t, err)
	return m
}

// fixture is a seeded database with one write per clock step.
type fixture struct {
	session  *Session
	store    *store.Store
	customer *customer
	product  *product
	order    *order
	// at[i] is the instant of the i-th write:
	//  0 insert type, customer and product (price 1000)
	//  1 product price 2000
	//  2 insert order
	//  3 rename customer to "Arthur Dent"
	//  4 product price 3000
	//  5 rename product type
	at []time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	st, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "query.db"), testModel(t),
		store.WithClock(clock.Now), store.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.EnsureSchema(ctx))

	session, err := NewSession(st, WithLogger(logger))
	require.NoError(t, err)

	f := &fixture{session: session, store: st}
	step := func(write func() (time.Time, error)) {
		at, err := write()
		require.NoError(t, err)
		f.at = append(f.at, at)
	}

	pt := &productType{ID: 11, Name: "Product Type 11"}
	f.customer = &customer{Name: "Arthur"}
	f.product = &product{Name: "DeLorean", Price: 1000, ProductTypeID: 11}
	step(func() (time.Time, error) { return st.Insert(ctx, pt, f.customer, f.product) })

	f.product.Price = 2000
	step(func() (time.Time, error) { return st.Update(ctx, f.product) })

	f.order = &order{CustomerID: f.customer.ID, ProductID: f.product.ID, Quantity: 1}
	step(func() (time.Time, error) { return st.Insert(ctx, f.order) })

	f.customer.Name = "Arthur Dent"
	step(func() (time.Time, error) { return st.Update(ctx, f.customer) })

	f.product.Price = 3000
	step(func() (time.Time, error) { return st.Update(ctx, f.product) })

	pt.Name = "Product Type 11b"
	step(func() (time.Time, error) { return st.Update(ctx, pt) })

	return f
}
