// Package engine implements the sync engine: the declarative table of
// cross-concept rules and the interpreter that runs them.
//
// A rule says "when Trigger succeeds, invoke each of Includes". The engine
// is called by the dispatcher after a primary action succeeds. It never
// changes the primary outcome.
//
// EXECUTION MODEL:
//
// Rules are evaluated in declaration order; within a rule, effects run
// sequentially in list order, each awaited before the next starts.
// Failures are isolated per effect: a missing concept, a missing action,
// a failing mapper, or a failing effect is recorded in the Report and
// logged, and the next effect still runs.
//
// Effects invoke concept actions directly through the registry. They do
// not pass through the dispatcher, so an effect never fires further rules
// and never notifies the gateway.
//
// Every effect is stamped with a seq from the shared logical Clock.
package engine
