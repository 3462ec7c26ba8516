// Package store is the SQLite database behind CampusCloset.
//
// One database file holds two kinds of data:
//   - concept state (users, listings, bids, threads, request logs), read and
//     written by the concept packages through DB and WithTx
//   - the action log (invocations, outcomes, sync_effects), an append-only
//     record of every dispatched action and every sync effect it caused
//
// Action log ordering uses the logical seq, never wall time. Every read
// orders by seq with an id COLLATE BINARY tiebreaker, so listings are stable
// across runs.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - a single connection, since SQLite allows one writer
package store
