package entry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalJSON produces deterministic JSON for hashing and signing:
// keys sorted lexicographically at every level, no whitespace, null
// serialized as null. Logically identical inputs yield byte-identical
// output regardless of in-memory insertion order.
func CanonicalJSON(v any) ([]byte, error) {
	// Marshal first to normalize the value into generic JSON shapes.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical unmarshal: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	default:
		// Primitives: string, float64, bool, nil.
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}
	return nil
}

// HashPayload builds the canonical byte sequence an entry's content hash is
// computed over. The field set is fixed by contract: ID, CreatedAt,
// Signature, and ArchiveAfter are deliberately excluded so that storage
// metadata never feeds the chain.
func HashPayload(e Entry, prevHash string) ([]byte, error) {
	envelope := map[string]any{
		"event_type":  string(e.EventType),
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"action":      e.Action,
		"actor_id":    nullableString(e.ActorID),
		"old_values":  nullableMap(e.OldValues),
		"new_values":  nullableMap(e.NewValues),
		"prev_hash":   nullableString(prevHash),
	}
	return CanonicalJSON(envelope)
}

// ContentHash computes the lowercase-hex SHA-256 content hash of an entry
// chained to prevHash.
func ContentHash(e Entry, prevHash string) (string, error) {
	payload, err := HashPayload(e, prevHash)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// SignPayload builds the canonical byte sequence the integrity service
// signs: the hashed field set plus the stored hash, id, and timestamp. The
// hash excludes storage metadata by contract, so the signature is the only
// tamper protection covering when an event happened and where it sits in
// the chain.
func SignPayload(e Entry) ([]byte, error) {
	envelope := map[string]any{
		"id":          e.ID,
		"event_type":  string(e.EventType),
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"action":      e.Action,
		"actor_id":    nullableString(e.ActorID),
		"old_values":  nullableMap(e.OldValues),
		"new_values":  nullableMap(e.NewValues),
		"prev_hash":   nullableString(e.PrevHash),
		"curr_hash":   e.CurrHash,
		"created_at":  e.CreatedAt.UTC().UnixMilli(),
	}
	return CanonicalJSON(envelope)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
