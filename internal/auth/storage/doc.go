// Package storage defines persistence contracts for authentication state.
//
// These interfaces exist so credential logic and API handlers can depend on
// stable domain semantics without coupling to SQLite schema details.
package storage
