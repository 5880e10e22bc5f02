// Package store is the typed façade over a boundary.
//
// A Manager owns one database definition, a correlation table and the
// boundary attachment. Bind a record descriptor to the manager to get a
// Store[T] with CRUD, bulk and query operations.
//
// # Completion styles
//
// Mutations come in two styles. The plain methods take an optional
// *correlate.Listener and return the call's token at once; the outcome is
// delivered to the listener, or to Manager.Notifications when there is none.
// These methods never fail once the call is prepared: a boundary error
// becomes a failed notification carrying the same token. The *Async
// variants wait for the outcome and return it, together with a
// *BoundaryError when the boundary rejected the call.
//
// Reads wait for the boundary's reply. A boundary error is published as a
// failed notification and then returned.
//
// Schema, marshal and predicate errors are always returned before anything
// crosses the boundary.
package store
