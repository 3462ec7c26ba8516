package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/campuscloset/internal/ir"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MaxLimit caps Select.Limit.
const MaxLimit = 500

// Validate checks that q is safe to compile: identifiers only where names
// go, a positive bounded limit, and no float or composite literals.
// All problems are reported together.
func Validate(q Query) error {
	v := &validator{}
	v.query(q)
	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.selectNode(query, true)
	case *Select:
		if query == nil {
			v.addf("nil query")
			return
		}
		v.selectNode(*query, true)
	default:
		v.addf("unsupported query type %T", q)
	}
}

func (v *validator) selectNode(sel Select, top bool) {
	v.ident("table", sel.From)
	if len(sel.Fields) == 0 {
		v.addf("select from %q: at least one field is required", sel.From)
	}
	for _, f := range sel.Fields {
		v.ident("field", f)
	}
	for _, o := range sel.OrderBy {
		v.ident("order field", o.Field)
	}
	if top && (sel.Limit <= 0 || sel.Limit > MaxLimit) {
		v.addf("limit must be between 1 and %d, got %d", MaxLimit, sel.Limit)
	}
	if !top && len(sel.Fields) != 1 {
		v.addf("subquery on %q must select exactly one field", sel.From)
	}
	v.predicate(sel.Filter)
}

func (v *validator) ident(kind, name string) {
	if !identRe.MatchString(name) {
		v.addf("invalid %s name %q", kind, name)
	}
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.ident("field", pred.Field)
		v.scalar(pred.Field, pred.Value)
	case In:
		v.ident("field", pred.Field)
		for _, val := range pred.Values {
			v.scalar(pred.Field, val)
		}
	case Range:
		v.ident("field", pred.Field)
		if pred.Min != nil && pred.Max != nil && *pred.Min > *pred.Max {
			v.addf("range on %q: min %d is greater than max %d", pred.Field, *pred.Min, *pred.Max)
		}
	case Contains:
		v.ident("field", pred.Field)
	case IsNull:
		v.ident("field", pred.Field)
	case InSelect:
		v.ident("field", pred.Field)
		v.selectNode(pred.Sub, false)
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	default:
		v.addf("unsupported predicate type %T", p)
	}
}

func (v *validator) scalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil, ir.IRNull:
		v.addf("field %q compared to null; use IsNull", field)
	default:
		v.addf("field %q compared to non-scalar %T", field, val)
	}
}
