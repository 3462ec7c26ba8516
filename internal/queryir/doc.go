// Package queryir is the query representation the read-side concepts build
// and the SQL backend compiles.
//
// Concepts never write SQL for list queries by hand. They describe what they
// want as a Select with predicates, and querysql turns that into a
// parameterized SQLite statement:
//
//	[concept action] -> [queryir.Select] -> [querysql.Compile] -> SQL + args
//
// Query and Predicate are sealed interfaces (marker methods), so the
// compiler's type switches are exhaustive.
//
// Rules every query obeys:
//   - Literal values are ir.IRValue; there are no floats, money is integer cents.
//   - Field and table names are identifiers, never user input. Validate
//     rejects anything else before it reaches SQL.
//   - Results are always ordered and always limited. The compiler appends an
//     id tiebreaker to every ORDER BY so equal keys come back in a stable order.
package queryir
