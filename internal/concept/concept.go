// Package concept defines the capability every concept exposes to the
// dispatcher and the sync engine, and the registry that resolves them by name.
//
// A concept is an independent unit of state and behavior. Concepts never
// import each other; cross-concept behavior is declared as sync rules.
package concept

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/roach88/campuscloset/internal/ir"
)

// Handler runs one action. Params and result are plain IR objects; a
// non-nil error means the action failed and the result is ignored.
type Handler func(ctx context.Context, params ir.IRObject) (ir.IRObject, error)

// Concept is a named bag of actions.
type Concept interface {
	Name() string
	// Actions lists the action names in sorted order.
	Actions() []string
	// Action returns the handler for name, or false if there is none.
	Action(name string) (Handler, bool)
}

// Set is the map-backed Concept used by every concept package.
//
// Handlers are registered during construction; a Set is not safe for
// concurrent mutation but is safe for concurrent reads afterwards.
type Set struct {
	name     string
	handlers map[string]Handler
}

// NewSet creates an empty concept named name.
func NewSet(name string) *Set {
	return &Set{name: name, handlers: make(map[string]Handler)}
}

// Handle registers h under action, replacing any earlier handler.
// Returns the set for chaining.
func (s *Set) Handle(action string, h Handler) *Set {
	s.handlers[action] = h
	return s
}

// Name implements Concept.
func (s *Set) Name() string { return s.name }

// Actions implements Concept.
func (s *Set) Actions() []string {
	names := make([]string, 0, len(s.handlers))
	for n := range s.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Action implements Concept.
func (s *Set) Action(name string) (Handler, bool) {
	h, ok := s.handlers[name]
	return h, ok
}

// HasAction reports whether c exposes a callable action named action.
func HasAction(c Concept, action string) bool {
	if c == nil {
		return false
	}
	h, ok := c.Action(action)
	return ok && h != nil
}

// Call runs h and converts a panic into an error so one misbehaving
// action cannot take down the caller. A nil result is normalized to an
// empty object.
func Call(ctx context.Context, h Handler, params ir.IRObject) (result ir.IRObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	if params == nil {
		params = ir.IRObject{}
	}
	result, err = h(ctx, params)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = ir.IRObject{}
	}
	return result, nil
}

// PanicError wraps a recovered panic from an action handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}
