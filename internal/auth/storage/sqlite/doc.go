// Package sqlite provides SQLite-backed authentication persistence.
//
// It is the default on-disk identity store used by the identity service and
// command tooling that exercises authentication flows.
package sqlite
