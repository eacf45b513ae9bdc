package temporal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Helpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"unsupported type", NewUnsupportedTypeError("Animal", "abstract"), IsUnsupportedType},
		{"unsupported navigation", NewUnsupportedTemporalNavigationError("ProductType", "All"), IsUnsupportedTemporalNavigation},
		{"navigation mode", NewTemporalNavigationModeError("Customer", "Range"), IsTemporalNavigationMode},
		{"mismatched sources", NewMismatchedTemporalSourcesError("Order", "AsOf", "All"), IsMismatchedTemporalSources},
		{"missing period", NewMissingPeriodPropertyError("Order", PeriodStartName), IsMissingPeriodProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))

			wrapped := fmt.Errorf("building query: %w", tt.err)
			assert.True(t, tt.check(wrapped), "helper should see through wrapping")
		})
	}
}

func TestError_HelpersRejectOtherCodes(t *testing.T) {
	err := NewUnsupportedTypeError("Animal", "abstract")

	assert.False(t, IsMismatchedTemporalSources(err))
	assert.False(t, IsUnsupportedType(errors.New("plain")))
	assert.False(t, IsUnsupportedType(nil))
}

func TestError_MessageNamesEntity(t *testing.T) {
	err := NewMismatchedTemporalSourcesError("Order", "AsOf", "All")

	msg := err.Error()
	assert.Contains(t, msg, "MISMATCHED_TEMPORAL_SOURCES")
	assert.Contains(t, msg, `"Order"`)
	assert.Contains(t, msg, "first=AsOf")
	assert.Contains(t, msg, "second=All")
}

func TestError_AsExtractsFields(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewTemporalNavigationModeError("Customer", "All"))

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "Customer", te.EntityType)
	assert.Equal(t, "All", te.Mode)
}
