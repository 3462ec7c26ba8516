// Package compiler turns a CUE rule file into sync rules and route lists.
//
// A rule file looks like:
//
//	sync: "AcceptBidAndSell": {
//		description: "Accepting a bid marks the listing sold"
//		when: {action: "Bidding.acceptBid"}
//		then: [{action: "ItemListing.setStatus", args: {listingId: "params.listingId", status: "Sold"}}]
//	}
//
//	routes: {
//		included: ["Feed.getLatest", ...]
//		excluded: ["Bidding.placeBid", ...]
//	}
//
// Rules keep their declaration order. See Template for how args map.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
)

// RuleSet is a compiled rule file.
type RuleSet struct {
	Rules    []RuleSpec `json:"rules"`
	Included []string   `json:"included"`
	Excluded []string   `json:"excluded"`
}

// RuleSpec is one declared sync rule.
type RuleSpec struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	When        string       `json:"when"`
	Then        []EffectSpec `json:"then"`
	Pos         token.Pos    `json:"-"`
}

// EffectSpec is one effect of a rule. Args is the template the effect's
// params are built from.
type EffectSpec struct {
	Action string      `json:"action"`
	Args   ir.IRObject `json:"args"`
	Pos    token.Pos   `json:"-"`
}

// Load compiles a rule file, or every .cue file of a directory as one
// package.
func Load(path string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		return CompileSource(path, src)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, fmt.Errorf("rules: no CUE instances in %s", path)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(ctx.BuildInstance(instances[0]))
}

// CompileSource compiles rule file source. filename is used in positions.
func CompileSource(filename string, src []byte) (*RuleSet, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
}

// Compile reads the sync rules and routes out of a CUE value.
func Compile(v cue.Value) (*RuleSet, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	rs := &RuleSet{Included: []string{}, Excluded: []string{}}

	syncsVal := v.LookupPath(cue.ParsePath("sync"))
	if syncsVal.Exists() {
		iter, err := syncsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			rule, err := compileRule(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			rs.Rules = append(rs.Rules, rule)
		}
	}

	routesVal := v.LookupPath(cue.ParsePath("routes"))
	if routesVal.Exists() {
		var err error
		if rs.Included, err = stringList(routesVal, "included"); err != nil {
			return nil, err
		}
		if rs.Excluded, err = stringList(routesVal, "excluded"); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func compileRule(name string, v cue.Value) (RuleSpec, error) {
	rule := RuleSpec{Name: name, Pos: v.Pos()}
	field := "sync." + name

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		desc, err := d.String()
		if err != nil {
			return rule, &CompileError{Field: field + ".description", Message: "description must be a string", Pos: d.Pos()}
		}
		rule.Description = desc
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return rule, &CompileError{Field: field + ".when", Message: "when clause is required", Pos: v.Pos()}
	}
	actionVal := whenVal.LookupPath(cue.ParsePath("action"))
	if !actionVal.Exists() {
		return rule, &CompileError{Field: field + ".when.action", Message: "when clause requires 'action' field", Pos: whenVal.Pos()}
	}
	when, err := actionVal.String()
	if err != nil {
		return rule, &CompileError{Field: field + ".when.action", Message: "action must be a string action reference", Pos: actionVal.Pos()}
	}
	rule.When = when

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return rule, &CompileError{Field: field + ".then", Message: "then clause is required", Pos: v.Pos()}
	}
	list, err := thenVal.List()
	if err != nil {
		return rule, &CompileError{Field: field + ".then", Message: "then must be a list of effects", Pos: thenVal.Pos()}
	}
	for i := 0; list.Next(); i++ {
		eff, err := compileEffect(fmt.Sprintf("%s.then[%d]", field, i), list.Value())
		if err != nil {
			return rule, err
		}
		rule.Then = append(rule.Then, eff)
	}
	return rule, nil
}

func compileEffect(field string, v cue.Value) (EffectSpec, error) {
	eff := EffectSpec{Args: ir.IRObject{}, Pos: v.Pos()}

	actionVal := v.LookupPath(cue.ParsePath("action"))
	if !actionVal.Exists() {
		return eff, &CompileError{Field: field + ".action", Message: "effect requires 'action' field", Pos: v.Pos()}
	}
	action, err := actionVal.String()
	if err != nil {
		return eff, &CompileError{Field: field + ".action", Message: "action must be a string action reference", Pos: actionVal.Pos()}
	}
	eff.Action = action

	argsVal := v.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() {
		args, err := templateValue(field+".args", argsVal)
		if err != nil {
			return eff, err
		}
		obj, ok := args.(ir.IRObject)
		if !ok {
			return eff, &CompileError{Field: field + ".args", Message: "args must be a struct", Pos: argsVal.Pos()}
		}
		eff.Args = obj
	}
	return eff, nil
}

// templateValue converts concrete CUE data into an IR template.
func templateValue(field string, v cue.Value) (ir.IRValue, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := templateValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			label := iter.Selector().Unquoted()
			elem, err := templateValue(field+"."+label, iter.Value())
			if err != nil {
				return nil, err
			}
			obj[label] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "floats are not allowed, use int", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()), Pos: v.Pos()}
	}
}

func stringList(v cue.Value, name string) ([]string, error) {
	out := []string{}
	lv := v.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return out, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &CompileError{Field: "routes." + name, Message: "must be a list of strings", Pos: lv.Pos()}
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "routes." + name, Message: "route must be a string", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// SyncRules builds engine rules with template mappers. Action refs must
// parse; Validate reports the rest.
func (rs *RuleSet) SyncRules() ([]engine.SyncRule, error) {
	out := make([]engine.SyncRule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		tc, ta, err := ir.ParseActionRef(r.When)
		if err != nil {
			return nil, fmt.Errorf("rule %q: when: %w", r.Name, err)
		}
		rule := engine.SyncRule{
			Name:        r.Name,
			Description: r.Description,
			Trigger:     engine.Trigger{Concept: tc, Action: ta},
		}
		for i, e := range r.Then {
			ec, ea, err := ir.ParseActionRef(e.Action)
			if err != nil {
				return nil, fmt.Errorf("rule %q: then[%d]: %w", r.Name, i, err)
			}
			rule.Includes = append(rule.Includes, engine.Effect{
				Concept: ec,
				Action:  ea,
				Map:     Template(e.Args),
			})
		}
		out = append(out, rule)
	}
	return out, nil
}

// RuleTable builds the engine rule table.
func (rs *RuleSet) RuleTable() (*engine.RuleTable, error) {
	rules, err := rs.SyncRules()
	if err != nil {
		return nil, err
	}
	return engine.NewRuleTable(rules)
}

// RouteTable builds the route table from the declared route lists.
func (rs *RuleSet) RouteTable() (*routes.Table, error) {
	return routes.NewTable(rs.Included, rs.Excluded)
}
