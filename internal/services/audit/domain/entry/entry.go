package entry

import (
	"strings"
	"time"
)

// Type identifies the kind of audited event.
type Type string

// Account and access events.
const (
	// TypeUserLogin records a successful authentication.
	TypeUserLogin Type = "USER_LOGIN"
	// TypeUserLogout records the end of an authenticated session.
	TypeUserLogout Type = "USER_LOGOUT"
	// TypeLoginFailed records a failed authentication attempt.
	TypeLoginFailed Type = "LOGIN_FAILED"
	// TypePasswordChanged records a credential rotation.
	TypePasswordChanged Type = "PASSWORD_CHANGED"
	// TypePermissionChanged records a change to a user's permissions.
	TypePermissionChanged Type = "PERMISSION_CHANGED"
	// TypeRoleAssigned records granting a role to a user.
	TypeRoleAssigned Type = "ROLE_ASSIGNED"
	// TypeRoleRevoked records removing a role from a user.
	TypeRoleRevoked Type = "ROLE_REVOKED"
	// TypeUserCreated records the creation of a user account.
	TypeUserCreated Type = "USER_CREATED"
	// TypeUserUpdated records updates to a user account.
	TypeUserUpdated Type = "USER_UPDATED"
	// TypeUserDeleted records the deletion of a user account.
	TypeUserDeleted Type = "USER_DELETED"
)

// Submission workflow events.
const (
	// TypeSubmissionCreated records a new certification submission.
	TypeSubmissionCreated Type = "SUBMISSION_CREATED"
	// TypeSubmissionUpdated records updates to a submission.
	TypeSubmissionUpdated Type = "SUBMISSION_UPDATED"
	// TypeSubmissionApproved records a submission passing review.
	TypeSubmissionApproved Type = "SUBMISSION_APPROVED"
	// TypeSubmissionRejected records a submission failing review.
	TypeSubmissionRejected Type = "SUBMISSION_REJECTED"
)

// Certificate lifecycle events.
const (
	// TypeCertificateIssued records issuance of a certificate.
	TypeCertificateIssued Type = "CERTIFICATE_ISSUED"
	// TypeCertificateRenewed records renewal of a certificate.
	TypeCertificateRenewed Type = "CERTIFICATE_RENEWED"
	// TypeCertificateRevoked records revocation of a certificate.
	TypeCertificateRevoked Type = "CERTIFICATE_REVOKED"
)

// Template events.
const (
	// TypeTemplateCreated records the creation of a certification template.
	TypeTemplateCreated Type = "TEMPLATE_CREATED"
	// TypeTemplateUpdated records updates to a template.
	TypeTemplateUpdated Type = "TEMPLATE_UPDATED"
	// TypeTemplatePublished records publishing a template version.
	TypeTemplatePublished Type = "TEMPLATE_PUBLISHED"
)

// Entry represents an immutable record in the tamper-evident audit trail.
//
// Once persisted an entry is never updated; the retention sweep may archive
// and delete it wholesale after its expiry passes.
type Entry struct {
	// ID is the monotonically increasing identifier assigned by storage on
	// append. It defines the total order used for chaining.
	ID int64
	// EventType classifies what happened (see Type constants).
	EventType Type
	// EntityType is the kind of business entity affected.
	EntityType string
	// EntityID is the identifier of the entity affected.
	EntityID string
	// EntityName is a denormalized label captured at write time. It survives
	// deletion of the referenced business entity.
	EntityName string
	// Action is the operation performed (create, update, delete, ...).
	Action string
	// ActorID identifies who caused the event (empty for system events).
	ActorID string
	// ActorIP is the remote address of the actor, when known.
	ActorIP string
	// ActorUserAgent is the actor's client identification, when known.
	ActorUserAgent string
	// OldValues captures entity state before the change, when applicable.
	OldValues map[string]any
	// NewValues captures entity state after the change, when applicable.
	NewValues map[string]any
	// PrevHash is the content hash of the entry immediately preceding this
	// one by ID order (empty for the first entry ever written).
	// Assigned by storage on append.
	PrevHash string
	// CurrHash is the content hash of this entry.
	// Assigned by storage on append.
	CurrHash string
	// Signature is the HMAC tag over the entry, or empty when signing was
	// unavailable at append time. Assigned by storage on append.
	Signature string
	// CreatedAt is the server-assigned timestamp, immutable.
	CreatedAt time.Time
	// ArchiveAfter is the retention expiry; nil means indefinite retention.
	ArchiveAfter *time.Time
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}
