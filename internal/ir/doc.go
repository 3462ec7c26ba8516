// Package ir provides the value model shared by every concept, the sync
// engine, and the dispatcher.
//
// Action params and results are IRObjects. ir imports nothing internal,
// so every other package can depend on it without cycles.
//
// Key constraints:
//   - NO float types anywhere - money is integer cents
//   - Canonical JSON (RFC 8785) is the only input to content-addressed IDs
//   - Logical clocks (seq) order the action log, never wall-clock time
package ir
