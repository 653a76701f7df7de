// Package signing attaches and verifies HMAC tags over audit entries.
//
// The trust root is pluggable: a locally held secret or a delegated
// external key-management provider, resolved once at startup. Verification
// always recomputes the expected tag independently and compares in
// constant time; stored signatures are never mutated.
package signing
