// Package entry defines the audit trail's entry model and the canonical
// encoding every hash and signature in the system is computed over.
//
// The canonical encoder is the single place where field ordering is
// defined; storage and signing both delegate here so the byte sequences
// they operate on cannot drift between layers.
package entry
