// Package profiles implements the profile collection manager: the single
// entry point the presentation layer uses to read and write employee
// profiles.
//
// A Manager owns one (scope, collection) namespace in a shared store. It is
// constructed once per process, initialized once, and then used from any
// goroutine without external locking. The Manager keeps no record state of
// its own: every read is materialized from the store, and per-document
// atomicity comes from the store, not from locks held here. The replicator
// writes the same collection concurrently.
//
// Lifecycle:
//
//	Uninitialized --Initialize--> Initializing --> Ready
//
// Ready is terminal. Initialize on a Ready manager returns nil immediately.
//
// Error handling:
//
// Benign conditions are absorbed and logged: a collection that already
// exists at Initialize, and a Delete of an id that is not present. Every
// other failure is returned as a *Error whose Kind lets callers tell an empty
// collection apart from a failed query.
package profiles
