package temporal

import "time"

// Default shadow property names bound to the period columns.
const (
	PeriodStartName = "PeriodStart"
	PeriodEndName   = "PeriodEnd"
)

// OpenEnd is the ValidTo value of the currently valid version of a row.
// It matches the maximum value of a SQL Server datetime2(7) column.
var OpenEnd = time.Date(9999, time.December, 31, 23, 59, 59, 999999900, time.UTC)

// InstantLayout renders instants with a fixed width so that the textual
// form of two UTC instants sorts the same way as the instants.
const InstantLayout = "2006-01-02T15:04:05.0000000Z07:00"

// FormatInstant renders t in UTC using InstantLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// Entity is implemented by domain types that expose the validity interval of
// the version they were materialized from.
type Entity interface {
	ValidFrom() time.Time
	ValidTo() time.Time
	SetValidFrom(t time.Time)
	SetValidTo(t time.Time)
}

// Period holds a half-open validity interval [ValidFrom, ValidTo).
// Embed it in a domain struct to implement Entity.
type Period struct {
	from time.Time
	to   time.Time
}

// NewPeriod returns a period with the given bounds.
func NewPeriod(from, to time.Time) Period {
	return Period{from: from, to: to}
}

// ValidFrom returns the inclusive start of the version's validity.
func (p Period) ValidFrom() time.Time { return p.from }

// ValidTo returns the exclusive end of the version's validity.
func (p Period) ValidTo() time.Time { return p.to }

// SetValidFrom sets the inclusive start.
func (p *Period) SetValidFrom(t time.Time) { p.from = t }

// SetValidTo sets the exclusive end.
func (p *Period) SetValidTo(t time.Time) { p.to = t }

// IsCurrent reports whether the version is still valid (open-ended).
func (p Period) IsCurrent() bool {
	return !p.to.Before(OpenEnd)
}

// Contains reports whether t lies within [ValidFrom, ValidTo).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.from) && t.Before(p.to)
}

// IsEmpty reports whether the interval contains no instant.
func (p Period) IsEmpty() bool {
	return !p.from.Before(p.to)
}

var _ Entity = (*Period)(nil)
