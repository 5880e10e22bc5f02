// Package predicate builds boolean predicates over record fields and
// compiles them to the OR-of-AND groups a query payload carries.
//
// Predicates are written with a small combinator DSL:
//
//	predicate.And(predicate.F("Name").Eq("Bob"), predicate.F("Age").Gt(30))
//	predicate.Or(
//	    predicate.F("Name").StartsWith("c", predicate.CultureAware),
//	    predicate.F("Name").StartsWith("l", predicate.CultureAware),
//	)
//	predicate.L(30).Lt(predicate.F("Age")) // compiled as Age > 30
//
// Compile resolves each field through a schema.Lookup. Only primary key,
// unique, and indexed fields may be compared. Negation and an OR nested
// under an AND inside another OR are rejected.
package predicate
