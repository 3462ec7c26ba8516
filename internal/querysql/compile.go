// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/queryir"
)

// Compile converts a query to SQL and its positional arguments.
//
// Every statement has an ORDER BY ending in "id ASC COLLATE BINARY" and a
// LIMIT. Values are always bound as ? parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	c := &compiler{}
	var b strings.Builder
	c.selectBody(&b, sel)

	b.WriteString(" ORDER BY ")
	for _, o := range sel.OrderBy {
		if o.Field == "id" {
			continue
		}
		b.WriteString(o.Field)
		if o.Desc {
			b.WriteString(" DESC, ")
		} else {
			b.WriteString(" ASC, ")
		}
	}
	b.WriteString("id ASC COLLATE BINARY LIMIT ?")
	c.args = append(c.args, sel.Limit)

	if c.err != nil {
		return "", nil, c.err
	}
	return b.String(), c.args, nil
}

type compiler struct {
	args []any
	err  error
}

func (c *compiler) selectBody(b *strings.Builder, sel queryir.Select) {
	fmt.Fprintf(b, "SELECT %s FROM %s", strings.Join(sel.Fields, ", "), sel.From)
	if sel.Filter != nil {
		b.WriteString(" WHERE ")
		c.predicate(b, sel.Filter)
	}
}

func (c *compiler) predicate(b *strings.Builder, p queryir.Predicate) {
	switch pred := p.(type) {
	case queryir.Equals:
		b.WriteString(pred.Field + " = ?")
		c.bind(pred.Value)

	case queryir.In:
		if len(pred.Values) == 0 {
			b.WriteString("0 = 1")
			return
		}
		b.WriteString(pred.Field + " IN (")
		for i, v := range pred.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			c.bind(v)
		}
		b.WriteString(")")

	case queryir.Range:
		switch {
		case pred.Min != nil && pred.Max != nil:
			b.WriteString(pred.Field + " BETWEEN ? AND ?")
			c.args = append(c.args, *pred.Min, *pred.Max)
		case pred.Min != nil:
			b.WriteString(pred.Field + " >= ?")
			c.args = append(c.args, *pred.Min)
		case pred.Max != nil:
			b.WriteString(pred.Field + " <= ?")
			c.args = append(c.args, *pred.Max)
		default:
			b.WriteString(pred.Field + " IS NOT NULL")
		}

	case queryir.Contains:
		// instr is byte-exact, unlike LIKE which folds ASCII only.
		b.WriteString("instr(" + pred.Field + ", ?) > 0")
		c.args = append(c.args, pred.Substring)

	case queryir.IsNull:
		if pred.Not {
			b.WriteString(pred.Field + " IS NOT NULL")
		} else {
			b.WriteString(pred.Field + " IS NULL")
		}

	case queryir.InSelect:
		b.WriteString(pred.Field + " IN (")
		c.selectBody(b, pred.Sub)
		b.WriteString(")")

	case queryir.And:
		c.junction(b, pred.Predicates, " AND ", "1 = 1")

	case queryir.Or:
		c.junction(b, pred.Predicates, " OR ", "0 = 1")

	default:
		if c.err == nil {
			c.err = fmt.Errorf("unsupported predicate type: %T", p)
		}
	}
}

func (c *compiler) junction(b *strings.Builder, preds []queryir.Predicate, sep, empty string) {
	if len(preds) == 0 {
		b.WriteString(empty)
		return
	}
	b.WriteString("(")
	for i, p := range preds {
		if i > 0 {
			b.WriteString(sep)
		}
		c.predicate(b, p)
	}
	b.WriteString(")")
}

func (c *compiler) bind(v ir.IRValue) {
	param, err := irValueToParam(v)
	if err != nil && c.err == nil {
		c.err = err
	}
	c.args = append(c.args, param)
}

// irValueToParam converts a scalar IRValue to a driver argument.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
