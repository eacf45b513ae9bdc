package queryir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

var (
	t2021a = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	t2021b = time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	t2021c = time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestCreateQueryRoot_NavigationTable(t *testing.T) {
	m := testModel(t)
	x := NewExpander()
	cust := entityType(t, m, "Customer")
	ord := entityType(t, m, "Order")
	pt := entityType(t, m, "ProductType")

	tests := []struct {
		name     string
		target   string
		source   Root
		want     Root
		errCheck func(error) bool
	}{
		{"nil source", "Order", nil, Plain{Entity: ord}, nil},
		{"plain source", "ProductType", Plain{Entity: ord}, Plain{Entity: pt}, nil},

		{"asof into temporal", "Customer", AsOf{Entity: ord, PointInTime: t2021a}, AsOf{Entity: cust, PointInTime: t2021a}, nil},
		{"asof into non-temporal degrades", "ProductType", AsOf{Entity: ord, PointInTime: t2021a}, Plain{Entity: pt}, nil},
		{"range into non-temporal degrades", "ProductType", Range{Entity: ord, From: t2021a, To: t2021c}, Plain{Entity: pt}, nil},

		{"all into non-temporal", "ProductType", All{Entity: ord}, nil, temporal.IsUnsupportedTemporalNavigation},
		{"all into temporal", "Customer", All{Entity: ord}, nil, temporal.IsTemporalNavigationMode},
		{"range into temporal", "Customer", Range{Entity: ord, From: t2021a, To: t2021c}, nil, temporal.IsTemporalNavigationMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := x.CreateQueryRoot(entityType(t, m, tt.target), tt.source)
			if tt.errCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.errCheck(err), "unexpected error: %v", err)
				assert.Contains(t, err.Error(), tt.target)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateQueryRoot_OwnedCarveOuts(t *testing.T) {
	m := testModel(t)
	x := NewExpander()
	cust := entityType(t, m, "Customer")
	addr := entityType(t, m, "Address")
	prefs := entityType(t, m, "Prefs")
	notes := entityType(t, m, "Note")

	sources := []Root{
		AsOf{Entity: cust, PointInTime: t2021a},
		All{Entity: cust},
		Range{Entity: cust, From: t2021a, To: t2021c},
	}

	for _, src := range sources {
		t.Run(src.Mode().String(), func(t *testing.T) {
			got, err := x.CreateQueryRoot(addr, src)
			require.NoError(t, err, "owned in owner's table")
			assert.Equal(t, src.Mode(), got.Mode())
			assert.Same(t, addr, got.EntityType())

			got, err = x.CreateQueryRoot(prefs, src)
			require.NoError(t, err, "owned as JSON")
			assert.Equal(t, Retarget(src, prefs), got)
		})
	}

	t.Run("owned in another table is not exempt", func(t *testing.T) {
		assert.False(t, notes.IsOwnedInOwnerTable())

		err := x.ValidateQueryRootCreation(notes, All{Entity: cust})
		assert.True(t, temporal.IsUnsupportedTemporalNavigation(err))

		got, err := x.CreateQueryRoot(notes, AsOf{Entity: cust, PointInTime: t2021a})
		require.NoError(t, err)
		assert.Equal(t, Plain{Entity: notes}, got)
	})
}

func TestValidateQueryRootCreation(t *testing.T) {
	m := testModel(t)
	x := NewExpander()
	ord := entityType(t, m, "Order")
	pt := entityType(t, m, "ProductType")
	cust := entityType(t, m, "Customer")

	assert.NoError(t, x.ValidateQueryRootCreation(pt, AsOf{Entity: ord, PointInTime: t2021a}))
	assert.NoError(t, x.ValidateQueryRootCreation(pt, Range{Entity: ord, From: t2021a, To: t2021c}))
	assert.NoError(t, x.ValidateQueryRootCreation(pt, Plain{Entity: ord}))
	assert.NoError(t, x.ValidateQueryRootCreation(pt, nil))
	assert.NoError(t, x.ValidateQueryRootCreation(cust, All{Entity: ord}), "temporal targets pass validation")

	err := x.ValidateQueryRootCreation(pt, All{Entity: ord})
	require.Error(t, err)
	assert.True(t, temporal.IsUnsupportedTemporalNavigation(err))

	var te *temporal.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ProductType", te.EntityType)
	assert.Equal(t, "All", te.Mode)
}

func TestCreateQueryRoot_DoesNotMutateSource(t *testing.T) {
	m := testModel(t)
	x := NewExpander()
	ord := entityType(t, m, "Order")
	src := AsOf{Entity: ord, PointInTime: t2021a}

	_, err := x.CreateQueryRoot(entityType(t, m, "Customer"), src)
	require.NoError(t, err)
	assert.Same(t, ord, src.Entity)
	assert.Equal(t, t2021a, src.PointInTime)
}

func TestAreRootsCompatible(t *testing.T) {
	m := testModel(t)
	x := NewExpander()
	ord := entityType(t, m, "Order")
	cust := entityType(t, m, "Customer")
	vip := entityType(t, m, "VipCustomer")

	tests := []struct {
		name       string
		first      Root
		second     Root
		want       bool
		mismatched bool
	}{
		{"both plain", Plain{Entity: ord}, Plain{Entity: ord}, true, false},
		{"both nil", nil, nil, true, false},
		{"asof equal", AsOf{Entity: ord, PointInTime: t2021a}, AsOf{Entity: ord, PointInTime: t2021a}, true, false},
		{"asof equal instant other zone", AsOf{Entity: ord, PointInTime: t2021a}, AsOf{Entity: ord, PointInTime: t2021a.In(time.FixedZone("X", 7200))}, true, false},
		{"asof differ", AsOf{Entity: ord, PointInTime: t2021a}, AsOf{Entity: ord, PointInTime: t2021b}, false, true},
		{"all and all", All{Entity: ord}, All{Entity: ord}, true, false},
		{"range equal", Range{Entity: ord, From: t2021a, To: t2021c}, Range{Entity: ord, From: t2021a, To: t2021c}, true, false},
		{"range from differs", Range{Entity: ord, From: t2021a, To: t2021c}, Range{Entity: ord, From: t2021b, To: t2021c}, false, true},
		{"range to differs", Range{Entity: ord, From: t2021a, To: t2021c}, Range{Entity: ord, From: t2021a, To: t2021b}, false, true},
		{"asof and all", AsOf{Entity: ord, PointInTime: t2021a}, All{Entity: ord}, false, true},
		{"temporal and plain", All{Entity: ord}, Plain{Entity: ord}, false, true},
		{"plain and temporal", Plain{Entity: ord}, Range{Entity: ord, From: t2021a, To: t2021c}, false, true},
		{"different hierarchies", Plain{Entity: ord}, Plain{Entity: cust}, false, false},
		{"different hierarchies temporal", All{Entity: ord}, AsOf{Entity: cust, PointInTime: t2021a}, false, false},
		{"one nil", Plain{Entity: ord}, nil, false, false},
		{"derived and base", AsOf{Entity: vip, PointInTime: t2021a}, AsOf{Entity: cust, PointInTime: t2021a}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := x.AreRootsCompatible(tt.first, tt.second)
			if tt.mismatched {
				require.Error(t, err)
				assert.True(t, temporal.IsMismatchedTemporalSources(err))
				assert.Contains(t, err.Error(), tt.first.EntityType().Name)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
