// Package engine implements the reference boundary executing store calls.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every accepted call goes through one FIFO queue and one goroutine (Run).
// This ensures:
// - Calls execute in acceptance order
// - Backends need no locking of their own
// - Completions reach each caller in issue order
//
// Call Processing Flow:
// 1. Invoke validates the call (and decodes a where payload)
// 2. Mutations are queued and Invoke returns at once
// 3. Reads are queued and Invoke waits for the loop's reply
// 4. Run dequeues calls one at a time and executes them on the Backend
// 5. Mutation outcomes go to the Completer attached under the call's caller
//
// Backends live in sibling packages: memdb (in memory) and sqlitedb
// (SQLite). Both evaluate queries with queryir semantics.
package engine
