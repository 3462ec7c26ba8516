// Package routes classifies concept actions as included or excluded.
//
// An included route runs directly. An excluded route is first announced
// to the gateway concept so it can be logged. Anything else is
// unclassified: it still runs, but the dispatcher warns about it.
package routes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/campuscloset/internal/ir"
)

// Class is the classification of a route.
type Class int

const (
	Unclassified Class = iota
	Included
	Excluded
)

func (c Class) String() string {
	switch c {
	case Included:
		return "included"
	case Excluded:
		return "excluded"
	default:
		return "unclassified"
	}
}

// Key builds the "Concept.action" key a route is stored under.
func Key(concept, action string) string {
	return concept + "." + action
}

// Table holds two disjoint sets of route keys. It is immutable after
// construction and safe for concurrent use.
type Table struct {
	included map[string]struct{}
	excluded map[string]struct{}
}

// NewTable builds a table. Every key must be a valid "Concept.action"
// reference and no key may appear in both sets.
func NewTable(included, excluded []string) (*Table, error) {
	t := &Table{
		included: make(map[string]struct{}, len(included)),
		excluded: make(map[string]struct{}, len(excluded)),
	}

	var bad []string
	for _, k := range included {
		if _, _, err := ir.ParseActionRef(k); err != nil {
			bad = append(bad, k)
			continue
		}
		t.included[k] = struct{}{}
	}
	for _, k := range excluded {
		if _, _, err := ir.ParseActionRef(k); err != nil {
			bad = append(bad, k)
			continue
		}
		t.excluded[k] = struct{}{}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("malformed route keys (want Concept.action): %s", strings.Join(bad, ", "))
	}

	var overlap []string
	for k := range t.included {
		if _, ok := t.excluded[k]; ok {
			overlap = append(overlap, k)
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return nil, fmt.Errorf("routes both included and excluded: %s", strings.Join(overlap, ", "))
	}

	return t, nil
}

// MustTable is like NewTable but panics on error.
func MustTable(included, excluded []string) *Table {
	t, err := NewTable(included, excluded)
	if err != nil {
		panic(err)
	}
	return t
}

// Classify returns the class of concept.action by exact match.
func (t *Table) Classify(concept, action string) Class {
	if t == nil {
		return Unclassified
	}
	key := Key(concept, action)
	if _, ok := t.excluded[key]; ok {
		return Excluded
	}
	if _, ok := t.included[key]; ok {
		return Included
	}
	return Unclassified
}

// Included returns the included keys, sorted.
func (t *Table) Included() []string { return sortedKeys(t.included) }

// Excluded returns the excluded keys, sorted.
func (t *Table) Excluded() []string { return sortedKeys(t.excluded) }

// Unclassified returns the refs from actions that are in neither set.
func (t *Table) Unclassified(actions []string) []string {
	var out []string
	for _, ref := range actions {
		c, a, err := ir.ParseActionRef(ref)
		if err != nil {
			continue
		}
		if t.Classify(c, a) == Unclassified {
			out = append(out, ref)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
