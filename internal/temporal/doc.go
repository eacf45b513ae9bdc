// Package temporal defines the contract shared by the materializer and the
// query-root validator: the temporal entity capability, the naming
// convention for period shadow properties, and the error taxonomy.
//
// # Capability
//
// A domain type becomes a temporal entity by embedding Period:
//
//	type Order struct {
//	    temporal.Period
//	    ID        uuid.UUID
//	    OrderDate time.Time
//	}
//
// The validity fields are never mapped columns. They are populated only by
// the materializer, from the PeriodStart/PeriodEnd shadow columns that the
// storage engine maintains.
//
// # Errors
//
// All failures raised by this module are *Error values carrying an
// ErrorCode. Use the Is* helpers, which understand wrapped errors.
package temporal
