// Package boundary defines the message-passing contract between the store
// façade and whatever engine executes its calls.
//
// The façade only ever sees this package: Call in, Reply or error back, and
// ir.Outcome values delivered later to the Completer attached under the
// call's caller handle.
package boundary
