package entry

import (
	"strings"

	apperrors "github.com/louisbranch/certtrail/internal/platform/errors"
)

// NormalizeForAppend validates and normalizes an entry before storage
// assigns ordering, hashes, and signatures.
func NormalizeForAppend(e Entry) (Entry, error) {
	if e.ID != 0 {
		return Entry{}, apperrors.New(apperrors.CodeEntryPreassignedMeta, "entry id must be assigned by storage")
	}
	if strings.TrimSpace(e.PrevHash) != "" || strings.TrimSpace(e.CurrHash) != "" {
		return Entry{}, apperrors.New(apperrors.CodeEntryPreassignedMeta, "entry hashes must be assigned by storage")
	}
	if strings.TrimSpace(e.Signature) != "" {
		return Entry{}, apperrors.New(apperrors.CodeEntryPreassignedMeta, "entry signature must be assigned by storage")
	}
	if e.ArchiveAfter != nil {
		return Entry{}, apperrors.New(apperrors.CodeEntryPreassignedMeta, "entry archive date must be assigned by storage")
	}

	e.EventType = Type(strings.TrimSpace(string(e.EventType)))
	if !e.EventType.IsValid() {
		return Entry{}, apperrors.New(apperrors.CodeEntryEmptyEventType, "event type is required")
	}
	e.EntityType = strings.TrimSpace(e.EntityType)
	if e.EntityType == "" {
		return Entry{}, apperrors.New(apperrors.CodeEntryEmptyEntityType, "entity type is required")
	}
	e.EntityID = strings.TrimSpace(e.EntityID)
	if e.EntityID == "" {
		return Entry{}, apperrors.New(apperrors.CodeEntryEmptyEntityID, "entity id is required")
	}
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return Entry{}, apperrors.New(apperrors.CodeEntryEmptyAction, "action is required")
	}

	e.EntityName = strings.TrimSpace(e.EntityName)
	e.ActorID = strings.TrimSpace(e.ActorID)
	e.ActorIP = strings.TrimSpace(e.ActorIP)
	e.ActorUserAgent = strings.TrimSpace(e.ActorUserAgent)

	if err := checkValues(e.OldValues); err != nil {
		return Entry{}, apperrors.Wrap(apperrors.CodeEntryInvalidValues, "old values are not serializable", err)
	}
	if err := checkValues(e.NewValues); err != nil {
		return Entry{}, apperrors.Wrap(apperrors.CodeEntryInvalidValues, "new values are not serializable", err)
	}

	return e, nil
}

// checkValues proves a value map can round-trip through the canonical
// encoder so append never persists an entry it cannot later hash.
func checkValues(m map[string]any) error {
	if m == nil {
		return nil
	}
	_, err := CanonicalJSON(m)
	return err
}
