package querysql

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

type customer struct {
	temporal.Period
	ID   uuid.UUID
	Name string
}

type order struct {
	temporal.Period
	ID         uuid.UUID
	CustomerID uuid.UUID
	Quantity   int
}

type productType struct {
	ID   int64
	Name string
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(
		&model.EntityType{
			Name:   "Customer",
			GoType: model.TypeOf[customer](),
			Table:  &model.Table{Name: "Customers", Temporal: &model.TemporalTable{}},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
			},
		},
		&model.EntityType{
			Name:   "Order",
			GoType: model.TypeOf[order](),
			Table: &model.Table{Schema: "sales", Name: "Orders", Temporal: &model.TemporalTable{
				HistoryTable:      "OrdersArchive",
				PeriodStartColumn: "SysStart",
				PeriodEndColumn:   "SysEnd",
			}},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "CustomerID"},
				{Name: "Quantity"},
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

func newCompiler(t *testing.T, dialect string) *Compiler {
	t.Helper()
	c, err := NewCompiler(dialect, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return c
}
