// Package query is the read pipeline: it builds queryir queries from an
// immutable builder, expands navigation includes through the Expander,
// compiles and runs the SQL, and materializes the rows.
//
//	products, err := query.List[demo.Product](ctx,
//		session.MustSet("Product").AsOf(t).Include("Orders.Customer"))
//
// An include path is expanded one navigation at a time. Each level reads
// the target entity type under the root the Expander derives from the
// level above, so an AsOf query reads the related rows as of the same
// instant while non-temporal targets read their current rows.
package query
