// Package model provides the read-only mapping model consumed by the
// materializer and the query-root expander.
//
// A model is a set of entity types. Each entity type binds a Go struct to a
// table and lists its properties in storage order: the index of a property is
// the position of its value in the flat row buffer the store returns.
//
// Models are built with New (from Go literals) or LoadCUE (from a CUE
// document), are validated once, and are never mutated afterwards. Every
// accessor is safe for concurrent use.
//
// # Shadow properties
//
// A shadow property has a column and a storage index but no struct field.
// Temporal tables always carry two of them, bound by name to the period
// start and period end columns (see temporal.PeriodStartName). New appends
// them when a temporal entity type does not declare them.
package model
