// Package store provides the SQLite-backed storage engine for appsync
// document collections.
//
// A Store holds any number of collections, each addressed by a (scope, name)
// pair. Documents inside a collection are keyed by id and stored as a single
// canonical JSON body, so every save or delete is one row write inside one
// transaction: readers never observe a half-written document, whether the
// write came from a local caller or from the replicator.
//
// # Sequencing
//
// Every committed write takes the next value of a store-wide sequence. The
// replicator uses it to find local writes that have not been pushed yet;
// wall-clock time is never used for ordering.
//
// # Tombstones
//
// Deletes keep the row with deleted=1 and an empty body so the delete itself
// can be replicated. Queries and GetDocument skip tombstones unless asked.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Documents must belong to a registered collection
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo)
// and "sqlite" (modernc.org/sqlite, pure Go).
package store
