// Package sqlite persists the work queue, builds, inter-project builds, leases
// and build-state snapshots in one SQLite database (modernc.org/sqlite, no cgo).
//
// Every conditional update reports the affected row count so callers can detect
// a lost race without treating it as a failure.
package sqlite
