package store

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
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
	"github.com/dragos-durlut/TemporalTables/internal/testutil"
)

var epoch = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

type product struct {
	temporal.Period
	ID    uuid.UUID
	Name  string
	Price float64
	Tags  []string
}

type productType struct {
	ID   int64
	Name string
}

type dimensions struct {
	Width  int
	Height int
}

type crate struct {
	ID   int64
	Size *dimensions
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New(
		&model.EntityType{
			Name:   "Product",
			GoType: model.TypeOf[product](),
			Table:  &model.Table{Name: "Products", Temporal: &model.TemporalTable{}},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
				{Name: "Price"},
				{Name: "Tags", Nullable: true},
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
		&model.EntityType{
			Name:   "Crate",
			GoType: model.TypeOf[crate](),
			Table:  &model.Table{Name: "Crates"},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
			},
			ComplexProperties: []*model.ComplexProperty{
				{Name: "Size", Properties: []*model.Property{{Name: "Width"}, {Name: "Height"}}},
			},
		},
	)
	require.NoError(t, err)
	return m
}

// createTestStore opens a file-backed SQLite store with its schema and a
// stepping clock starting at epoch.
func createTestStore(t *testing.T) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(epoch, time.Second)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(DriverSQLite, path, testModel(t),
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s, clock
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}
