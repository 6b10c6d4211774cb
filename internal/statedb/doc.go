// Package statedb persists the bridge's mutable state in SQLite.
//
// Three tables are used:
//   - settings: key/value pairs such as zone ids, generated dsUIDs and the
//     cloud session cookie
//   - scenes: saved scenes keyed by bus scene number, ordered by slot
//   - state_history: JSON snapshots of the appliance state after polls
//     that changed a value
//
// The schema lives in the migrations package and is applied by
// database.DB.Migrate before a Repository is used.
package statedb
