// Package ir provides the value model shared by every idxstore package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This ensures IR remains the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Values crossing the boundary are IRValue (sealed); the boundary
//     discriminates them as number, string, bool or null
//   - Records are ordered property bags (Bag) keyed by column name
//   - All JSON tags use snake_case
//   - Query payloads are encoded with MarshalCanonical so equal predicates
//     produce equal bytes
package ir
