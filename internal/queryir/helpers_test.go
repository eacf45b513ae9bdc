package queryir

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

type customer struct {
	temporal.Period
	ID      uuid.UUID
	Name    string
	Address *address
	Prefs   *prefs
	Notes   []*note
	Orders  []*order
}

type vipCustomer struct {
	customer
	Tier int
}

type address struct {
	CustomerID uuid.UUID
	City       string
}

type prefs struct {
	CustomerID uuid.UUID
	Theme      string
}

type note struct {
	ID         int64
	CustomerID uuid.UUID
	Text       string
}

type order struct {
	temporal.Period
	ID            uuid.UUID
	CustomerID    uuid.UUID
	ProductTypeID int64
	Customer      *customer
	ProductType   *productType
}

type productType struct {
	ID   int64
	Name string
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	customers := &model.Table{Name: "Customers", Temporal: &model.TemporalTable{}}
	uuidType := reflect.TypeOf(uuid.UUID{})

	m, err := model.New(
		&model.EntityType{
			Name:   "Customer",
			GoType: model.TypeOf[customer](),
			Table:  customers,
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
			},
			Navigations: []*model.Navigation{
				{Name: "Address", Target: "Address", ForeignKey: "CustomerID", Principal: true},
				{Name: "Prefs", Target: "Prefs", ForeignKey: "CustomerID", Principal: true},
				{Name: "Notes", Target: "Note", ForeignKey: "CustomerID", Collection: true},
				{Name: "Orders", Target: "Order", ForeignKey: "CustomerID", Collection: true},
			},
		},
		&model.EntityType{
			Name:       "VipCustomer",
			Base:       "Customer",
			GoType:     model.TypeOf[vipCustomer](),
			Properties: []*model.Property{{Name: "Tier"}},
		},
		&model.EntityType{
			Name:      "Address",
			GoType:    model.TypeOf[address](),
			Ownership: &model.Ownership{Owner: "Customer"},
			Properties: []*model.Property{
				{Name: "CustomerID", Column: "ID", Key: true},
				{Name: "City", Column: "Address_City"},
			},
		},
		&model.EntityType{
			Name:      "Prefs",
			GoType:    model.TypeOf[prefs](),
			Ownership: &model.Ownership{Owner: "Customer", JSON: true},
			Table:     &model.Table{Name: "CustomerPrefs"},
			Properties: []*model.Property{
				{Name: "CustomerID", Key: true, Type: uuidType},
				{Name: "Theme"},
			},
		},
		&model.EntityType{
			Name:      "Note",
			GoType:    model.TypeOf[note](),
			Ownership: &model.Ownership{Owner: "Customer"},
			Table:     &model.Table{Name: "CustomerNotes"},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "CustomerID"},
				{Name: "Text"},
			},
		},
		&model.EntityType{
			Name:   "Order",
			GoType: model.TypeOf[order](),
			Table:  &model.Table{Name: "Orders", Temporal: &model.TemporalTable{}},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "CustomerID"},
				{Name: "ProductTypeID"},
			},
			Navigations: []*model.Navigation{
				{Name: "Customer", Target: "Customer", ForeignKey: "CustomerID"},
				{Name: "ProductType", Target: "ProductType", ForeignKey: "ProductTypeID"},
			},
		},
		&model.EntityType{
			Name:   "ProductType",
			GoType: model.TypeOf[productType](),
			Table:  &model.Table{Name: "ProductTypes"},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
			},
		},
	)
	require.NoError(t, err)
	return m
}

func entityType(t *testing.T, m *model.Model, name string) *model.EntityType {
	t.Helper()
	et, ok := m.EntityType(name)
	require.True(t, ok, "entity type %s", name)
	return et
}
