// Package querysql compiles queryir queries into parameterized SQL.
//
// Three dialects are supported:
//
//   - sqlite3 and postgres emulate system versioning. A table's past versions
//     live in a history table with the same columns; temporal roots read the
//     union of the current and history tables and filter on the period
//     columns.
//   - sqlserver uses native temporal tables and the FOR SYSTEM_TIME clause.
//
// Period filters, for a root over an entity type with period columns
// (ps, pe):
//
//	AsOf(t)        ps <= t AND pe > t
//	Range(from,to) ps < to AND pe > from
//	All            no filter
//
// Every statement selects the columns of the root's entity type in property
// index order, so a result row is directly a materializer value buffer.
// Every statement ends with a deterministic ORDER BY (explicit ordering,
// then key columns, then period start for reads that can return several
// versions of a row). Values are always bound as parameters.
package querysql
