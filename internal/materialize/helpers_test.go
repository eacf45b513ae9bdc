package materialize

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

type labelSet struct {
	items []string
}

func (l *labelSet) Clear() { l.items = l.items[:0] }

func (l *labelSet) Items() []any {
	out := make([]any, len(l.items))
	for i, s := range l.items {
		out[i] = s
	}
	return out
}

func (l *labelSet) Add(v any) { l.items = append(l.items, v.(string)) }

var csvConverter = &model.Converter{
	Name: "csv",
	FromProvider: func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("csv: unexpected %T", v)
		}
		return &labelSet{items: strings.Split(s, ",")}, nil
	},
	ToProvider: func(v any) (any, error) {
		return strings.Join(v.(*labelSet).items, ","), nil
	},
}

type product struct {
	temporal.Period
	ID     uuid.UUID
	Name   string
	Price  float64
	Tags   map[string]int
	Labels *labelSet
}

type note struct {
	temporal.Period
	ID   int64
	Text string
}

type fakeClock struct{ now time.Time }

type auditLog struct{ entries []string }

type account struct {
	ID    int64
	Name  string
	Audit *auditLog
	clock *fakeClock
}

type ledger struct {
	ID    int64
	Audit *auditLog
	clock *fakeClock
}

type address struct {
	Street string
	City   string
}

type supplier struct {
	ID      int64
	Home    address
	Billing *address
}

type animal struct {
	ID int64
}

var (
	productID = uuid.MustParse("018f4e2a-7b3c-7d00-8000-000000000001")
	jan2020   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	jun2020   = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testModel(t *testing.T) *model.Model {
	t.Helper()
	timeType := reflect.TypeOf(time.Time{})
	clockType := reflect.TypeOf(&fakeClock{})

	m, err := model.New(
		&model.EntityType{
			Name:   "Product",
			GoType: model.TypeOf[product](),
			Table:  &model.Table{Name: "Products", Temporal: &model.TemporalTable{}},
			Properties: []*model.Property{
				{Name: temporal.PeriodEndName, Shadow: true, Type: timeType},
				{Name: "ID", Key: true},
				{Name: temporal.PeriodStartName, Shadow: true, Type: timeType},
				{Name: "Name"},
				{Name: "Price"},
				{Name: "Tags"},
				{Name: "Labels", Converter: csvConverter},
			},
		},
		&model.EntityType{
			Name:   "Note",
			GoType: model.TypeOf[note](),
			Table:  &model.Table{Name: "Notes"},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Text"},
				{Name: temporal.PeriodStartName, Shadow: true, Type: timeType},
				{Name: temporal.PeriodEndName, Shadow: true, Type: timeType},
			},
		},
		&model.EntityType{
			Name:   "UndatedNote",
			GoType: model.TypeOf[note](),
			Table:  &model.Table{Name: "UndatedNotes", Temporal: &model.TemporalTable{SkipPeriodProperties: true}},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Text"},
			},
		},
		&model.EntityType{
			Name:   "Account",
			GoType: model.TypeOf[account](),
			Table:  &model.Table{Name: "Accounts"},
			Properties: []*model.Property{
				{Name: "ID", Key: true},
				{Name: "Name"},
			},
			ServiceProperties: []*model.ServiceProperty{{Name: "Audit"}},
			Constructor: &model.Constructor{
				Params: []model.Param{{Property: "ID"}, {Service: clockType}},
				New: func(args []any) any {
					return &account{ID: args[0].(int64), clock: args[1].(*fakeClock)}
				},
			},
		},
		&model.EntityType{
			Name:              "Ledger",
			GoType:            model.TypeOf[ledger](),
			Table:             &model.Table{Name: "Ledgers"},
			Properties:        []*model.Property{{Name: "ID", Key: true}},
			ServiceProperties: []*model.ServiceProperty{{Name: "Audit"}},
			Constructor: &model.Constructor{
				Params: []model.Param{{Service: clockType}},
				New: func(args []any) any {
					return &ledger{clock: args[0].(*fakeClock)}
				},
			},
		},
		&model.EntityType{
			Name:       "Supplier",
			GoType:     model.TypeOf[supplier](),
			Table:      &model.Table{Name: "Suppliers"},
			Properties: []*model.Property{{Name: "ID", Key: true}},
			ComplexProperties: []*model.ComplexProperty{
				{Name: "Home", Properties: []*model.Property{{Name: "Street"}, {Name: "City"}}},
				{Name: "Billing", Properties: []*model.Property{{Name: "City"}}},
			},
		},
		&model.EntityType{
			Name:       "Animal",
			GoType:     model.TypeOf[animal](),
			Abstract:   true,
			Table:      &model.Table{Name: "Animals"},
			Properties: []*model.Property{{Name: "ID", Key: true}},
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

// productRow returns a Product row; the period columns sit at indices 0 and
// 2, around the key.
func productRow() ValueBuffer {
	return ValueBuffer{
		"2020-06-01T00:00:00.0000000Z",
		productID.String(),
		jan2020,
		"DeLorean",
		float64(88),
		`{"gold":1}`,
		"classic,car",
	}
}
