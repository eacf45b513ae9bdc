package temporal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode categorizes temporal mapping errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedType indicates a type that cannot be materialized:
	// an abstract type, or an empty materializer requested for a type whose
	// constructor needs row values.
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"

	// ErrCodeUnsupportedTemporalNavigation indicates a navigation from an
	// all-versions root into a non-temporal entity type.
	ErrCodeUnsupportedTemporalNavigation ErrorCode = "UNSUPPORTED_TEMPORAL_NAVIGATION"

	// ErrCodeTemporalNavigationMode indicates a navigation from a temporal
	// root whose mode cannot be carried to the target.
	ErrCodeTemporalNavigationMode ErrorCode = "TEMPORAL_NAVIGATION_MODE"

	// ErrCodeMismatchedTemporalSources indicates a set operation over roots
	// with different temporal parameters.
	ErrCodeMismatchedTemporalSources ErrorCode = "MISMATCHED_TEMPORAL_SOURCES"

	// ErrCodeMissingPeriodProperty indicates a temporal entity type without
	// period shadow properties when strict checking is enabled.
	ErrCodeMissingPeriodProperty ErrorCode = "MISSING_PERIOD_PROPERTY"
)

// Error is returned by the materializer builder and the query-root
// validator. Every failure is raised while a plan or a query is being built,
// never while rows are read.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntityType is the display name of the offending entity type.
	EntityType string

	// Mode is the temporal mode involved, if any ("AsOf", "All", ...).
	Mode string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var ctx []string
	if e.EntityType != "" {
		ctx = append(ctx, "entity="+e.EntityType)
	}
	if e.Mode != "" {
		ctx = append(ctx, "mode="+e.Mode)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ctx = append(ctx, k+"="+e.Details[k])
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	return b.String()
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsUnsupportedType returns true for ErrCodeUnsupportedType errors.
func IsUnsupportedType(err error) bool {
	return HasCode(err, ErrCodeUnsupportedType)
}

// IsUnsupportedTemporalNavigation returns true for
// ErrCodeUnsupportedTemporalNavigation errors.
func IsUnsupportedTemporalNavigation(err error) bool {
	return HasCode(err, ErrCodeUnsupportedTemporalNavigation)
}

// IsTemporalNavigationMode returns true for ErrCodeTemporalNavigationMode errors.
func IsTemporalNavigationMode(err error) bool {
	return HasCode(err, ErrCodeTemporalNavigationMode)
}

// IsMismatchedTemporalSources returns true for
// ErrCodeMismatchedTemporalSources errors.
func IsMismatchedTemporalSources(err error) bool {
	return HasCode(err, ErrCodeMismatchedTemporalSources)
}

// IsMissingPeriodProperty returns true for ErrCodeMissingPeriodProperty errors.
func IsMissingPeriodProperty(err error) bool {
	return HasCode(err, ErrCodeMissingPeriodProperty)
}

// NewUnsupportedTypeError creates an Error for a type that cannot be
// materialized.
func NewUnsupportedTypeError(entityType, reason string) *Error {
	return &Error{
		Code:       ErrCodeUnsupportedType,
		Message:    fmt.Sprintf("cannot materialize entity type %q: %s", entityType, reason),
		EntityType: entityType,
	}
}

// NewUnsupportedTemporalNavigationError creates an Error for a navigation
// from a temporal root into a non-temporal entity type.
func NewUnsupportedTemporalNavigationError(entityType, mode string) *Error {
	return &Error{
		Code: ErrCodeUnsupportedTemporalNavigation,
		Message: fmt.Sprintf(
			"navigation expansion from a temporal %s query into non-temporal entity type %q is not supported; use AsOf or a range operation",
			mode, entityType),
		EntityType: entityType,
		Mode:       mode,
	}
}

// NewTemporalNavigationModeError creates an Error for a temporal mode that
// cannot be carried across a navigation.
func NewTemporalNavigationModeError(entityType, mode string) *Error {
	return &Error{
		Code: ErrCodeTemporalNavigationMode,
		Message: fmt.Sprintf(
			"navigation expansion into temporal entity type %q is only supported for AsOf queries, got %s",
			entityType, mode),
		EntityType: entityType,
		Mode:       mode,
	}
}

// NewMismatchedTemporalSourcesError creates an Error for a set operation
// over incompatible roots.
func NewMismatchedTemporalSourcesError(entityType, firstMode, secondMode string) *Error {
	return &Error{
		Code: ErrCodeMismatchedTemporalSources,
		Message: fmt.Sprintf(
			"set operation on entity type %q combines sources with different temporal operations or arguments",
			entityType),
		EntityType: entityType,
		Details: map[string]string{
			"first":  firstMode,
			"second": secondMode,
		},
	}
}

// NewMissingPeriodPropertyError creates an Error for a temporal entity type
// lacking the named period shadow property.
func NewMissingPeriodPropertyError(entityType, property string) *Error {
	return &Error{
		Code:       ErrCodeMissingPeriodProperty,
		Message:    fmt.Sprintf("temporal entity type %q has no shadow property %q", entityType, property),
		EntityType: entityType,
		Details:    map[string]string{"property": property},
	}
}
