package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

type testCustomer struct {
	temporal.Period
	ID     uuid.UUID
	Name   string
	Orders []*testOrder
	Tags   []string
}

type testOrder struct {
	temporal.Period
	ID         uuid.UUID
	CustomerID uuid.UUID
	Customer   *testCustomer
}

type testAddress struct {
	Street string
	City   string
}

type testSupplier struct {
	ID      int64
	Address testAddress
	Billing *testAddress
}

func testModel(t *testing.T) *Model {
	t.Helper()
	customers := &Table{Name: "Customers", Temporal: &TemporalTable{}}
	orders := &Table{Name: "Orders", Temporal: &TemporalTable{}}

	m, err := New(
		&EntityType{
			Name:   "Customer",
			GoType: TypeOf[testCustomer](),
			Table:  customers,
			Properties: []*Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
				{Name: "Tags"},
			},
			Navigations: []*Navigation{
				{Name: "Orders", Target: "Order", ForeignKey: "CustomerID", Collection: true},
			},
		},
		&EntityType{
			Name:   "Order",
			GoType: TypeOf[testOrder](),
			Table:  orders,
			Properties: []*Property{
				{Name: "ID", Key: true},
				{Name: "CustomerID"},
			},
			Navigations: []*Navigation{
				{Name: "Customer", Target: "Customer", ForeignKey: "CustomerID"},
			},
		},
	)
	require.NoError(t, err)
	return m
}

func TestNew_AppendsPeriodShadowProperties(t *testing.T) {
	m := testModel(t)
	customer, ok := m.EntityType("Customer")
	require.True(t, ok)

	props := customer.AllProperties()
	require.Len(t, props, 5)

	start, end := customer.PeriodProperties()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, temporal.PeriodStartName, start.Name)
	assert.Equal(t, temporal.PeriodEndName, end.Name)
	assert.True(t, start.Shadow)
	assert.Equal(t, 3, start.Index())
	assert.Equal(t, 4, end.Index())
	assert.Equal(t, reflect.TypeOf(time.Time{}), start.Type)
	assert.Nil(t, start.FieldIndex())
}

func TestNew_TemporalDefaults(t *testing.T) {
	m := testModel(t)
	customer, _ := m.EntityType("Customer")

	tt := customer.Table.Temporal
	assert.Equal(t, "CustomersHistory", tt.HistoryTable)
	assert.Equal(t, "PeriodStart", tt.PeriodStartColumn)
	assert.Equal(t, "PeriodEnd", tt.PeriodEndColumn)
	assert.True(t, customer.IsTemporal())
}

func TestNew_CustomPeriodNames(t *testing.T) {
	m, err := New(&EntityType{
		Name:   "Order",
		GoType: TypeOf[testOrder](),
		Table: &Table{Name: "Orders", Temporal: &TemporalTable{
			PeriodStartProperty: "SysStart",
			PeriodStartColumn:   "sys_start",
			PeriodEndColumn:     "sys_end",
		}},
		Properties: []*Property{{Name: "ID", Key: true}, {Name: "CustomerID"}},
	})
	require.NoError(t, err)

	order, _ := m.EntityType("Order")
	start, end := order.PeriodProperties()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, "SysStart", start.Name)
	assert.Equal(t, "sys_start", start.Column)
	assert.Equal(t, temporal.PeriodEndName, end.Name)
	assert.Equal(t, "sys_end", end.Column)
}

func TestNew_SkipPeriodProperties(t *testing.T) {
	m, err := New(&EntityType{
		Name:       "Order",
		GoType:     TypeOf[testOrder](),
		Table:      &Table{Name: "Orders", Temporal: &TemporalTable{SkipPeriodProperties: true}},
		Properties: []*Property{{Name: "ID", Key: true}, {Name: "CustomerID"}},
	})
	require.NoError(t, err)

	order, _ := m.EntityType("Order")
	assert.True(t, order.IsTemporal())
	start, end := order.PeriodProperties()
	assert.Nil(t, start)
	assert.Nil(t, end)
	assert.Len(t, order.AllProperties(), 2)
}

func TestNew_ShadowDeclaredFirstKeepsDeclarationOrder(t *testing.T) {
	timeType := reflect.TypeOf(time.Time{})
	m, err := New(&EntityType{
		Name:   "Order",
		GoType: TypeOf[testOrder](),
		Table:  &Table{Name: "Orders", Temporal: &TemporalTable{}},
		Properties: []*Property{
			{Name: temporal.PeriodEndName, Shadow: true, Type: timeType},
			{Name: "ID", Key: true},
			{Name: temporal.PeriodStartName, Shadow: true, Type: timeType},
			{Name: "CustomerID"},
		},
	})
	require.NoError(t, err)

	order, _ := m.EntityType("Order")
	start, end := order.PeriodProperties()
	assert.Equal(t, 2, start.Index())
	assert.Equal(t, 0, end.Index())
	assert.Len(t, order.AllProperties(), 4, "declared period properties are not duplicated")
}

func TestNew_PrimitiveCollectionGetsJSONConverter(t *testing.T) {
	m := testModel(t)
	customer, _ := m.EntityType("Customer")

	tags, ok := customer.FindProperty("Tags")
	require.True(t, ok)
	require.NotNil(t, tags.Converter)
	assert.Equal(t, "json", tags.Converter.Name)

	v, err := tags.Converter.FromProvider(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	raw, err := tags.Converter.ToProvider([]string{"x"})
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, raw)
}

func TestNew_ResolvesNavigations(t *testing.T) {
	m := testModel(t)
	customer, _ := m.EntityType("Customer")
	order, _ := m.EntityType("Order")

	orders, ok := customer.FindNavigation("Orders")
	require.True(t, ok)
	assert.Same(t, order, orders.TargetType())
	assert.True(t, orders.ForeignKeyOnTarget())
	assert.Same(t, order, orders.ForeignKeyProperty().DeclaringEntityType())

	back, ok := order.FindNavigation("Customer")
	require.True(t, ok)
	assert.False(t, back.ForeignKeyOnTarget())
	assert.Same(t, order, back.ForeignKeyProperty().DeclaringEntityType())
}

func TestNew_ComplexPropertiesIndexedAfterScalars(t *testing.T) {
	m, err := New(&EntityType{
		Name:       "Supplier",
		GoType:     TypeOf[testSupplier](),
		Table:      &Table{Name: "Suppliers"},
		Properties: []*Property{{Name: "ID", Key: true}},
		ComplexProperties: []*ComplexProperty{
			{Name: "Address", Properties: []*Property{{Name: "Street"}, {Name: "City"}}},
			{Name: "Billing", Properties: []*Property{{Name: "City"}}},
		},
	})
	require.NoError(t, err)

	s, _ := m.EntityType("Supplier")
	city, ok := s.FindProperty("Address.City")
	require.True(t, ok)
	assert.Equal(t, 2, city.Index())
	assert.Equal(t, "Address_City", city.Column)

	billing, ok := s.FindProperty("Billing.City")
	require.True(t, ok)
	assert.Equal(t, 3, billing.Index())
	assert.Equal(t, reflect.Pointer, s.ComplexProperties[1].Type().Kind())
	assert.False(t, s.IsTemporal())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		types   []*EntityType
		message string
	}{
		{
			name:    "missing key",
			types:   []*EntityType{{Name: "Order", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}, Properties: []*Property{{Name: "CustomerID"}}}},
			message: "no key property",
		},
		{
			name:    "unknown field",
			types:   []*EntityType{{Name: "Order", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}, Properties: []*Property{{Name: "Nope", Key: true}}}},
			message: "no struct field Nope",
		},
		{
			name:    "shadow without type",
			types:   []*EntityType{{Name: "Order", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}, Properties: []*Property{{Name: "ID", Key: true}, {Name: "X", Shadow: true}}}},
			message: "shadow property needs a type",
		},
		{
			name:    "no table",
			types:   []*EntityType{{Name: "Order", GoType: TypeOf[testOrder](), Properties: []*Property{{Name: "ID", Key: true}}}},
			message: "no table mapped",
		},
		{
			name:    "unknown base",
			types:   []*EntityType{{Name: "Order", Base: "Thing", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}}},
			message: `unknown base entity type "Thing"`,
		},
		{
			name: "duplicate",
			types: []*EntityType{
				{Name: "Order", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}, Properties: []*Property{{Name: "ID", Key: true}}},
				{Name: "Order", GoType: TypeOf[testOrder](), Table: &Table{Name: "Orders"}, Properties: []*Property{{Name: "ID", Key: true}}},
			},
			message: "duplicate entity type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.types...)
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestSameTable(t *testing.T) {
	a := &Table{Schema: "dbo", Name: "Orders"}

	assert.True(t, SameTable(a, a))
	assert.True(t, SameTable(a, &Table{Schema: "DBO", Name: "orders"}))
	assert.False(t, SameTable(a, &Table{Name: "Orders"}), "schema participates")
	assert.False(t, SameTable(a, &Table{Schema: "dbo", Name: "Customers"}))
	assert.False(t, SameTable(a, nil))
	assert.False(t, SameTable(nil, nil))
}

func TestFindByGoType(t *testing.T) {
	m := testModel(t)

	e, ok := m.FindByGoType(reflect.TypeOf(&testOrder{}))
	require.True(t, ok)
	assert.Equal(t, "Order", e.Name)

	_, ok = m.FindByGoType(reflect.TypeOf(testAddress{}))
	assert.False(t, ok)
}

func TestNewInstance_DefaultFactory(t *testing.T) {
	m := testModel(t)
	order, _ := m.EntityType("Order")

	inst := order.NewInstance()
	_, ok := inst.(*testOrder)
	assert.True(t, ok)
}
