// Package materialize turns flat row buffers into domain instances.
//
// For each entity type the Builder derives a construction Plan once: resolve
// constructor arguments, construct, assign mapped properties, attach service
// properties and, for temporal entities, stamp the validity period from the
// period shadow columns immediately before returning. The plan is lowered to
// a list of closures over precomputed field offsets and typed readers, so
// reading a row does no type reflection for common scalar types.
//
// Registering an Interceptor switches plans to the intercepted shape:
//
//	creating -> construct -> created -> initializing
//	    -> [assign, attach services unless suppressed]
//	    -> period stamping -> initialized -> return
//
// Interceptors inspect the row through MaterializationData, which converts
// property values lazily and lets them override values before assignment.
//
// Compiled materializers are cached per entity type for the life of the
// Cache. WithAlwaysRebuild selects the legacy behavior of compiling on every
// request.
package materialize
