// Package harness runs conformance scenarios against the record store.
//
// A scenario opens a database from CUE definitions, performs record
// operations through the typed store façade over the reference engine, and
// checks each step's outcome. Every step is traced; traces are
// deterministic and can be compared against golden files.
//
// # Scenario Format
//
//	name: directory_queries
//	description: "Indexed queries over the Person store"
//	definitions: ../defs        # CUE directory, relative to the scenario
//	database: Directory
//	backend: memory             # memory | sqlite, optional
//	setup:
//	  - op: add_range
//	    store: Person
//	    records:
//	      - { GUID: "...", Name: Bob, age: 31 }
//	flow:
//	  - op: query
//	    store: Person
//	    where:
//	      and:
//	        - { field: Name, op: "==", value: Bob }
//	        - { field: Age, op: ">", value: 30 }
//	    directives:
//	      - order_by_descending: Age
//	      - take: 2
//	    expect:
//	      records:
//	        - { Name: Bob }
//	assertions:
//	  - type: final_state
//	    store: Person
//	    key: 1
//	    expect: { Name: Bob }
//
// Records use column names. Conditions name record fields.
//
// # Operations
//
// open, delete_database, add, add_range, update, update_range, delete,
// delete_range, clear, get, all, query, count, estimate.
//
// # Assertion Types
//
//   - trace_contains: a traced step with the given op, store and message
//   - trace_order: ops appear in the given order
//   - trace_count: an op appears exactly N times
//   - final_state: the record under key holds the expected values, or the
//     store holds exactly count records
//
// # Deterministic Testing
//
// Correlation tokens come from testutil.SequenceGenerator and encrypted
// fields pass through testutil.ReverseHook, so the same scenario always
// yields the same trace.
package harness
