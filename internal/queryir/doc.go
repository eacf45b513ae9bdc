// Package queryir provides the logical query representation the query
// pipeline builds before anything reaches storage, and the Expander that
// decides which query root a navigation lands on.
//
// ROOTS:
//
// Every query starts at a Root, the logical source of rows for one entity
// type. A root is either Plain (current rows) or one of three temporal
// variants:
//
//	Plain          current rows
//	AsOf(t)        the version of each row valid at t
//	All            every version
//	Range(from,to) every version overlapping [from, to)
//
// Roots are immutable values. Deriving a root for another entity type
// always constructs a new value.
//
// NAVIGATION EXPANSION:
//
// When a query navigates from one entity type to another, the Expander
// derives the target's root from the source root:
//
//	source      target temporal     target not temporal
//	------      ---------------     -------------------
//	Plain       Plain               Plain
//	AsOf(t)     AsOf(t)             Plain
//	Range       error (mode)        Plain
//	All         error (mode)        error (unsupported)
//
// Owned types stored in their owner's table, as columns or as a JSON
// document, share their owner's rows and keep the source root unchanged.
//
// SET OPERATIONS:
//
// Union and Concat combine two queries only when their roots are
// compatible: same entity hierarchy, and either both plain or both temporal
// with equal parameters. Mixing fails with MISMATCHED_TEMPORAL_SOURCES.
//
// SEALED INTERFACES:
//
// Root, Query and Predicate are sealed with marker methods so that
// compilers can switch exhaustively over the node types:
//
//	switch r := root.(type) {
//	case Plain:
//	case AsOf:
//	case All:
//	case Range:
//	}
//
// All failures are raised while the query is built, before any storage
// access.
package queryir
