package queryir

import (
	"github.com/dragos-durlut/TemporalTables/internal/model"
	"github.com/dragos-durlut/TemporalTables/internal/temporal"
)

// Expander derives and combines query roots. It holds no state; the zero
// value is ready to use and safe for concurrent use.
type Expander struct{}

// NewExpander returns an Expander.
func NewExpander() *Expander {
	return &Expander{}
}

// sharesOwnerRows reports whether et lives in its owner's rows, as columns
// of the owner's table or as a JSON document in it. Such types follow their
// owner's root unchanged.
func sharesOwnerRows(et *model.EntityType) bool {
	return et.IsMappedToJSON() || et.IsOwnedInOwnerTable()
}

// ValidateQueryRootCreation reports whether a root for et may be derived
// from source. Navigating from an All root into a non-temporal entity type
// fails with UNSUPPORTED_TEMPORAL_NAVIGATION; AsOf and Range sources are
// accepted, anticipating the degrade to a plain root.
func (x *Expander) ValidateQueryRootCreation(et *model.EntityType, source Root) error {
	if !IsTemporal(source) || sharesOwnerRows(et) {
		return nil
	}
	if !et.Root().IsTemporal() && source.Mode() == ModeAll {
		return temporal.NewUnsupportedTemporalNavigationError(et.DisplayName(), source.Mode().String())
	}
	return nil
}

// CreateQueryRoot derives the root for et when navigating from source. A
// nil or plain source yields a plain root.
func (x *Expander) CreateQueryRoot(et *model.EntityType, source Root) (Root, error) {
	if !IsTemporal(source) {
		return Plain{Entity: et}, nil
	}
	if err := x.ValidateQueryRootCreation(et, source); err != nil {
		return nil, err
	}
	if sharesOwnerRows(et) {
		return Retarget(source, et), nil
	}

	if !et.Root().IsTemporal() {
		// Non-temporal data has no history to align with: read current rows.
		return Plain{Entity: et}, nil
	}

	if asOf, ok := source.(AsOf); ok {
		return AsOf{Entity: et, PointInTime: asOf.PointInTime}, nil
	}
	return nil, temporal.NewTemporalNavigationModeError(et.DisplayName(), source.Mode().String())
}

// AreRootsCompatible reports whether two roots may be combined by a set
// operation. Roots over different entity hierarchies are incompatible.
// Within a hierarchy, two plain roots combine, and two temporal roots
// combine when they have the same kind and equal parameters. Any other
// pairing fails with MISMATCHED_TEMPORAL_SOURCES.
func (x *Expander) AreRootsCompatible(first, second Root) (bool, error) {
	if !sameHierarchy(first, second) {
		return false, nil
	}

	firstTemporal, secondTemporal := IsTemporal(first), IsTemporal(second)
	if firstTemporal && secondTemporal {
		switch a := first.(type) {
		case AsOf:
			if b, ok := second.(AsOf); ok && a.PointInTime.Equal(b.PointInTime) {
				return true, nil
			}
		case All:
			if _, ok := second.(All); ok {
				return true, nil
			}
		case Range:
			if b, ok := second.(Range); ok && a.From.Equal(b.From) && a.To.Equal(b.To) {
				return true, nil
			}
		}
	}

	if firstTemporal || secondTemporal {
		et := entityOf(first, second)
		return false, temporal.NewMismatchedTemporalSourcesError(et.DisplayName(), modeOf(first), modeOf(second))
	}
	return true, nil
}

func sameHierarchy(first, second Root) bool {
	if first == nil && second == nil {
		return true
	}
	if first == nil || second == nil {
		return false
	}
	return first.EntityType().Root() == second.EntityType().Root()
}

func entityOf(first, second Root) *model.EntityType {
	if first != nil {
		return first.EntityType()
	}
	return second.EntityType()
}

func modeOf(r Root) string {
	if r == nil {
		return "none"
	}
	return r.Mode().String()
}
