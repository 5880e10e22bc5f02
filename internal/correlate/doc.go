// Package correlate pairs asynchronous calls with their completions.
//
// Each call gets a fresh token from a Table, registered either with a
// Listener (callback style) or a Future (awaitable style). The boundary
// later reports an ir.Outcome carrying the token; Table.Complete hands it to
// the registration exactly once and removes the entry.
//
// Listeners are held weakly. If the caller drops its listener before the
// completion arrives, the outcome is published on Notifications instead.
//
// Waiting with a timeout never removes the registration. Call Forget to
// drop one explicitly.
package correlate
