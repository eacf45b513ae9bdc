package materialize

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

func TestBuildMaterializer_TemporalRoundTrip(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	inst, err := fn(&Context{Buffer: productRow()})
	require.NoError(t, err)

	p, ok := inst.(*product)
	require.True(t, ok)
	assert.Equal(t, productID, p.ID)
	assert.Equal(t, "DeLorean", p.Name)
	assert.Equal(t, 88.0, p.Price)
	assert.Equal(t, map[string]int{"gold": 1}, p.Tags)
	assert.Equal(t, []string{"classic", "car"}, p.Labels.items)
	assert.Equal(t, jan2020, p.ValidFrom())
	assert.Equal(t, jun2020, p.ValidTo())
}

func TestBuildMaterializer_Idempotent(t *testing.T) {
	m := testModel(t)
	et := entityType(t, m, "Product")
	b := NewBuilder(WithAlwaysRebuild(true), WithLogger(discardLogger()))
	built := testutil.ToFloat64(plansBuilt.WithLabelValues("full"))

	first, err := b.BuildMaterializer(et)
	require.NoError(t, err)
	second, err := b.BuildMaterializer(et)
	require.NoError(t, err)
	assert.Equal(t, built+2, testutil.ToFloat64(plansBuilt.WithLabelValues("full")),
		"legacy mode compiles on every request")

	a, err := first(&Context{Buffer: productRow()})
	require.NoError(t, err)
	c, err := second(&Context{Buffer: productRow()})
	require.NoError(t, err)

	assert.NotSame(t, a, c)
	assert.Equal(t, a, c)
}

func TestBuildMaterializer_CachedByDefault(t *testing.T) {
	m := testModel(t)
	et := entityType(t, m, "Product")
	cache := NewCache()
	b := NewBuilder(WithCache(cache), WithLogger(discardLogger()))
	built := testutil.ToFloat64(plansBuilt.WithLabelValues("full"))
	hits := testutil.ToFloat64(planCacheHits)
	misses := testutil.ToFloat64(planCacheMisses)

	_, err := b.BuildMaterializer(et)
	require.NoError(t, err)
	_, err = b.BuildMaterializer(et)
	require.NoError(t, err)

	assert.Equal(t, built+1, testutil.ToFloat64(plansBuilt.WithLabelValues("full")))
	assert.Equal(t, hits+1, testutil.ToFloat64(planCacheHits))
	assert.Equal(t, misses+1, testutil.ToFloat64(planCacheMisses))
	assert.Equal(t, 1, cache.Len())

	other := NewBuilder(WithCache(cache), WithLogger(discardLogger()))
	_, err = other.BuildMaterializer(et)
	require.NoError(t, err)
	assert.Equal(t, built+1, testutil.ToFloat64(plansBuilt.WithLabelValues("full")),
		"builders sharing a cache share compiled plans")

	_, err = b.BuildEmptyMaterializer(entityType(t, m, "Ledger"))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestBuildMaterializer_ConcurrentFirstBuildConverges(t *testing.T) {
	m := testModel(t)
	et := entityType(t, m, "Product")
	cache := NewCache()
	b := NewBuilder(WithCache(cache), WithLogger(discardLogger()))
	built := testutil.ToFloat64(plansBuilt.WithLabelValues("full"))
	misses := testutil.ToFloat64(planCacheMisses)
	hits := testutil.ToFloat64(planCacheHits)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn, err := b.BuildMaterializer(et)
			if assert.NoError(t, err) {
				_, err = fn(&Context{Buffer: productRow()})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, built+1, testutil.ToFloat64(plansBuilt.WithLabelValues("full")),
		"concurrent first requests share one build")
	assert.Equal(t, misses+1, testutil.ToFloat64(planCacheMisses), "one miss per build")
	assert.Equal(t, hits+workers-1, testutil.ToFloat64(planCacheHits))
	assert.Equal(t, 1, cache.Len())
}

func TestBuildMaterializer_NonTemporalNeverStampsPeriod(t *testing.T) {
	m := testModel(t)
	et := entityType(t, m, "Note")
	b := NewBuilder(WithLogger(discardLogger()))

	plan, err := b.Plan(et)
	require.NoError(t, err)
	assert.False(t, plan.HasPeriodAssignments())

	fn, err := b.BuildMaterializer(et)
	require.NoError(t, err)
	inst, err := fn(&Context{Buffer: ValueBuffer{int64(7), "hello", jan2020, jun2020}})
	require.NoError(t, err)

	n := inst.(*note)
	assert.Equal(t, int64(7), n.ID)
	assert.Equal(t, "hello", n.Text)
	assert.True(t, n.ValidFrom().IsZero(), "shadow columns with period names are ignored")
	assert.True(t, n.ValidTo().IsZero())
}

func TestBuildMaterializer_AbstractType(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	_, err := b.BuildMaterializer(entityType(t, m, "Animal"))
	require.Error(t, err)
	assert.True(t, temporal.IsUnsupportedType(err))
	assert.Contains(t, err.Error(), `"Animal"`)

	_, err = b.BuildEmptyMaterializer(entityType(t, m, "Animal"))
	assert.True(t, temporal.IsUnsupportedType(err))
}

func TestBuildMaterializer_MissingPeriodProperties(t *testing.T) {
	m := testModel(t)
	et := entityType(t, m, "UndatedNote")

	t.Run("lenient skips", func(t *testing.T) {
		b := NewBuilder(WithLogger(discardLogger()))
		plan, err := b.Plan(et)
		require.NoError(t, err)
		assert.False(t, plan.HasPeriodAssignments())

		fn, err := b.BuildMaterializer(et)
		require.NoError(t, err)
		inst, err := fn(&Context{Buffer: ValueBuffer{int64(1), "x"}})
		require.NoError(t, err)
		assert.True(t, inst.(*note).ValidFrom().IsZero())
	})

	t.Run("strict fails", func(t *testing.T) {
		b := NewBuilder(WithStrictPeriodProperties(true), WithLogger(discardLogger()))
		_, err := b.BuildMaterializer(et)
		require.Error(t, err)
		assert.True(t, temporal.IsMissingPeriodProperty(err))
		assert.Contains(t, err.Error(), temporal.PeriodStartName)
	})
}

func TestBuildMaterializer_ConstructorAndServices(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Account"))
	require.NoError(t, err)

	clock := &fakeClock{now: jan2020}
	audit := &auditLog{}
	services := Services{}
	Add(services, clock)
	Add(services, audit)

	inst, err := fn(&Context{Buffer: ValueBuffer{int64(42), "Arthur"}, Services: services})
	require.NoError(t, err)

	a := inst.(*account)
	assert.Equal(t, int64(42), a.ID)
	assert.Equal(t, "Arthur", a.Name)
	assert.Same(t, clock, a.clock)
	assert.Same(t, audit, a.Audit)
}

func TestBuildMaterializer_MissingService(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Account"))
	require.NoError(t, err, "services are resolved per row, not at build time")

	_, err = fn(&Context{Buffer: ValueBuffer{int64(42), "Arthur"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fakeClock")
}

func TestBuildEmptyMaterializer(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	t.Run("service-only constructor", func(t *testing.T) {
		fn, err := b.BuildEmptyMaterializer(entityType(t, m, "Ledger"))
		require.NoError(t, err)

		clock := &fakeClock{}
		audit := &auditLog{}
		services := Services{}
		Add(services, clock)
		Add(services, audit)

		inst, err := fn(&Context{Services: services})
		require.NoError(t, err)
		l := inst.(*ledger)
		assert.Zero(t, l.ID)
		assert.Same(t, clock, l.clock)
		assert.Same(t, audit, l.Audit)
	})

	t.Run("parameterless factory", func(t *testing.T) {
		fn, err := b.BuildEmptyMaterializer(entityType(t, m, "Product"))
		require.NoError(t, err)
		inst, err := fn(&Context{})
		require.NoError(t, err)
		assert.Equal(t, &product{}, inst)
	})

	t.Run("constructor needs row values", func(t *testing.T) {
		_, err := b.BuildEmptyMaterializer(entityType(t, m, "Account"))
		require.Error(t, err)
		assert.True(t, temporal.IsUnsupportedType(err))
		assert.Contains(t, err.Error(), "Account")
	})
}

func TestBuildMaterializer_ComplexProperties(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Supplier"))
	require.NoError(t, err)

	inst, err := fn(&Context{Buffer: ValueBuffer{int64(3), "1 Main St", "Hill Valley", "Twin Pines"}})
	require.NoError(t, err)

	s := inst.(*supplier)
	assert.Equal(t, address{Street: "1 Main St", City: "Hill Valley"}, s.Home)
	require.NotNil(t, s.Billing, "pointer complex property is allocated")
	assert.Equal(t, "Twin Pines", s.Billing.City)
}

func TestBuildMaterializer_ShortRow(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	_, err = fn(&Context{Buffer: ValueBuffer{nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has 1 values, want 7")
}

func TestBuildMaterializer_BadValue(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	row := productRow()
	row[4] = "not a number"
	_, err = fn(&Context{Buffer: row})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Product.Price")
}

func TestBuildMaterializer_NullsYieldZeroValues(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	row := productRow()
	row[3], row[5], row[6] = nil, nil, nil
	inst, err := fn(&Context{Buffer: row})
	require.NoError(t, err)

	p := inst.(*product)
	assert.Empty(t, p.Name)
	assert.Nil(t, p.Tags)
	assert.Nil(t, p.Labels)
}

func TestBuildMaterializer_TargetOfWrongType(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	_, err = fn(&Context{Buffer: productRow(), Target: &note{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want *materialize.product")
}

func TestBuildMaterializer_PeriodBoundsAreHalfOpen(t *testing.T) {
	m := testModel(t)
	b := NewBuilder(WithLogger(discardLogger()))

	fn, err := b.BuildMaterializer(entityType(t, m, "Product"))
	require.NoError(t, err)

	inst, err := fn(&Context{Buffer: productRow()})
	require.NoError(t, err)

	p := inst.(*product)
	assert.True(t, p.ValidFrom().Before(p.ValidTo()))
	assert.True(t, p.Contains(jan2020))
	assert.False(t, p.Contains(jun2020))
	assert.False(t, p.IsCurrent())
	assert.WithinDuration(t, jun2020, p.ValidTo(), time.Nanosecond)
}
