// Package storage defines the persistence contracts for the audit trail:
// the append-only hash-chain entry store and the retention sweep's view of
// it. Implementations live in subpackages.
package storage
