// Package queryir defines the portable query payload that crosses the store
// boundary.
//
// A filtered query is a disjunction of conjunctions:
//
//	Groups{
//	    Group{{Column: "Name", Operation: Equal, Value: ir.IRString("Bob"), IsString: true, CaseSensitive: true},
//	          {Column: "age", Operation: GreaterThan, Value: ir.IRInt(30)}},
//	    Group{{Column: "Email", Operation: StartsWith, Value: ir.IRString("c"), IsString: true}},
//	}
//
// matches a record iff every condition of at least one group matches it.
// There is no OR inside a group and no nesting: flattening is the predicate
// compiler's job, not a storage feature.
//
// WIRE FORMAT:
//
// The boundary receives the groups and the post-filter directives as two
// separately serialized JSON arrays (EncodeGroups, EncodeDirectives), plus a
// "results must be unique" flag. Both encodings are RFC 8785 canonical so the
// same query always produces the same bytes.
//
// EXECUTION SEMANTICS:
//
// Groups are evaluated in order and their matches concatenated; with Unique
// set, a record matched by an earlier group is not repeated. Directives then
// run in declaration order (take, take_last, skip, order_by,
// order_by_descending). Matches, Filter and Apply are the reference
// implementation the in-process engines share; querysql compiles the same
// groups to SQL.
package queryir
