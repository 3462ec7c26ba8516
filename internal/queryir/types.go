package queryir

import "github.com/roach88/campuscloset/internal/ir"

// Query is a read query. Only Select implements it today.
type Query interface {
	queryNode()
}

// Predicate is a WHERE condition.
type Predicate interface {
	predicateNode()
}

// Order is one ORDER BY key.
type Order struct {
	Field string
	Desc  bool
}

// Select reads Fields from a table.
//
//	Select{
//	  From:    "listings",
//	  Fields:  []string{"id", "title"},
//	  Filter:  And{Predicates: []Predicate{Equals{"status", ir.IRString("Active")}}},
//	  OrderBy: []Order{{Field: "created_at", Desc: true}},
//	  Limit:   20,
//	}
//
// compiles to
//
//	SELECT id, title FROM listings WHERE status = ?
//	ORDER BY created_at DESC, id ASC COLLATE BINARY LIMIT ?
type Select struct {
	From    string
	Fields  []string
	Filter  Predicate // nil = no filter
	OrderBy []Order
	Limit   int
}

func (Select) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In is field IN (values...). An empty Values list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Range bounds an integer field. A nil bound is open.
type Range struct {
	Field string
	Min   *int64
	Max   *int64
}

func (Range) predicateNode() {}

// Contains is a substring match. Callers fold both sides to the same case
// before building it; the backend compares bytes.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// IsNull is field IS NULL, or IS NOT NULL when Not is set.
type IsNull struct {
	Field string
	Not   bool
}

func (IsNull) predicateNode() {}

// InSelect is field IN (SELECT ...). The subquery's single field is the
// membership column; its ORDER BY and Limit are ignored.
type InSelect struct {
	Field string
	Sub   Select
}

func (InSelect) predicateNode() {}

// And is a conjunction. Empty is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. Empty is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Int64 returns a pointer to n, for Range bounds.
func Int64(n int64) *int64 { return &n }
