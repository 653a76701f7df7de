// Package sqlite implements the audit storage contracts on modernc.org/sqlite.
//
// The append path is the one critical section in the subsystem: reading the
// chain tip and inserting the new entry happen under a store-level lock
// inside a single transaction. All timestamps persist as UTC milliseconds.
package sqlite
