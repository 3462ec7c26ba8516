package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/campuscloset/internal/concept"
	"github.com/roach88/campuscloset/internal/ir"
)

// Call is one recorded action invocation.
type Call struct {
	Concept string
	Action  string
	Params  ir.IRObject
}

// Journal records calls across several Recorders in the order they
// happened, so tests can assert cross-concept ordering.
type Journal struct {
	mu    sync.Mutex
	calls []Call
}

// NewJournal creates an empty journal.
func NewJournal() *Journal { return &Journal{} }

func (j *Journal) add(c Call) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, c)
}

// Calls returns a copy of the recorded calls.
func (j *Journal) Calls() []Call {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Call(nil), j.calls...)
}

// Refs returns the recorded calls as "Concept.action" strings.
func (j *Journal) Refs() []string {
	calls := j.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Concept + "." + c.Action
	}
	return out
}

// Recorder is a stub concept that records every call and answers with
// a canned result or error per action.
type Recorder struct {
	name    string
	journal *Journal

	mu      sync.Mutex
	results map[string]ir.IRObject
	errs    map[string]error
	actions map[string]bool
}

// NewRecorder creates a stub concept exposing actions. Calls are written
// to journal; pass nil for a private journal.
func NewRecorder(name string, journal *Journal, actions ...string) *Recorder {
	if journal == nil {
		journal = NewJournal()
	}
	r := &Recorder{
		name:    name,
		journal: journal,
		results: make(map[string]ir.IRObject),
		errs:    make(map[string]error),
		actions: make(map[string]bool),
	}
	for _, a := range actions {
		r.actions[a] = true
	}
	return r
}

// Respond sets the result returned by action.
func (r *Recorder) Respond(action string, result ir.IRObject) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[action] = result
	return r
}

// Fail makes action return err.
func (r *Recorder) Fail(action string, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[action] = err
	return r
}

// Name implements concept.Concept.
func (r *Recorder) Name() string { return r.name }

// Actions implements concept.Concept.
func (r *Recorder) Actions() []string {
	out := make([]string, 0, len(r.actions))
	for a := range r.actions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Action implements concept.Concept.
func (r *Recorder) Action(name string) (concept.Handler, bool) {
	if !r.actions[name] {
		return nil, false
	}
	return func(_ context.Context, params ir.IRObject) (ir.IRObject, error) {
		r.journal.add(Call{Concept: r.name, Action: name, Params: params.Clone()})

		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.errs[name]; err != nil {
			return nil, err
		}
		return r.results[name].Clone(), nil
	}, true
}

// Calls returns the calls this recorder received.
func (r *Recorder) Calls() []Call {
	var out []Call
	for _, c := range r.journal.Calls() {
		if c.Concept == r.name {
			out = append(out, c)
		}
	}
	return out
}
