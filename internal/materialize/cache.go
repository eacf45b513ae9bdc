package materialize

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dragos-durlut/TemporalTables/internal/model"
)

type variant int

const (
	variantFull variant = iota
	variantEmpty
)

func (v variant) String() string {
	if v == variantEmpty {
		return "empty"
	}
	return "full"
}

type cacheKey struct {
	entityType *model.EntityType
	variant    variant
}

// Cache holds compiled materializers keyed by entity type identity for the
// lifetime of the process. Concurrent first requests for the same key share
// one build, and a published entry is never replaced.
//
// A Cache may be shared by builders only if they are configured with the
// same interceptors and period options.
type Cache struct {
	entries sync.Map // cacheKey -> Func
	group   singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Len returns the number of cached materializers.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// getOrBuild returns the cached function for key, building it with build on
// the first request. hit is false only for the caller whose request ran
// build; callers that joined an in-flight build count as hits.
func (c *Cache) getOrBuild(key cacheKey, build func() (Func, error)) (fn Func, hit bool, err error) {
	if v, ok := c.entries.Load(key); ok {
		return v.(Func), true, nil
	}

	flightKey := fmt.Sprintf("%p/%d", key.entityType, key.variant)
	built := false
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		built = true
		fn, err := build()
		if err != nil {
			return nil, err
		}
		actual, _ := c.entries.LoadOrStore(key, fn)
		return actual, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(Func), !built, nil
}
