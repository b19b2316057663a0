// Copyright 2024-2026 Aiku AI

package bridge

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// participantSep joins sorted participant ids into the comparable form of a
// synthetic key. Remote user ids are numeric, so the separator never
// collides with id content.
const participantSep = ","

// ConversationKey identifies a remote conversation in the ChannelMap. It is
// either canonical (the platform-assigned conversation id) or synthetic (the
// sorted set of participant ids, used before the platform assigns an id).
// The only legal synthetic-to-canonical transition is ChannelMap.Rekey.
//
// The zero value is invalid. Keys are comparable and usable as map keys.
type ConversationKey struct {
	id           string
	participants string
}

// CanonicalKey creates a key from a platform-assigned conversation id.
func CanonicalKey(conversationID string) ConversationKey {
	return ConversationKey{id: conversationID}
}

// SyntheticKey creates a provisional key from a participant set. The ids
// are sorted so the same set always produces the same key.
func SyntheticKey(participantIDs ...string) ConversationKey {
	ids := make([]string, len(participantIDs))
	copy(ids, participantIDs)
	sort.Strings(ids)
	return ConversationKey{participants: strings.Join(ids, participantSep)}
}

// IsSynthetic reports whether the key is a provisional participant-set key.
func (k ConversationKey) IsSynthetic() bool {
	return k.id == ""
}

// IsZero reports whether the key is the invalid zero value.
func (k ConversationKey) IsZero() bool {
	return k.id == "" && k.participants == ""
}

// ConversationID returns the canonical conversation id, or "" for a
// synthetic key.
func (k ConversationKey) ConversationID() string {
	return k.id
}

// ParticipantIDs returns the sorted participant set of a synthetic key, or
// nil for a canonical key.
func (k ConversationKey) ParticipantIDs() []string {
	if k.participants == "" {
		return nil
	}
	return strings.Split(k.participants, participantSep)
}

func (k ConversationKey) String() string {
	if k.IsSynthetic() {
		return "participants:" + k.participants
	}
	return k.id
}

// MarshalJSON writes canonical keys as a bare string and synthetic keys as
// an array of participant ids, matching the persisted mapping format.
func (k ConversationKey) MarshalJSON() ([]byte, error) {
	if k.IsSynthetic() {
		return json.Marshal(k.ParticipantIDs())
	}
	return json.Marshal(k.id)
}

func (k *ConversationKey) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*k = CanonicalKey(id)
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return errors.Wrap(err, "conversation key is neither an id nor a participant list")
	}
	*k = SyntheticKey(ids...)
	return nil
}

// KeyForConversation derives the mapping key for a conversation: canonical
// when the platform has assigned an id, synthetic otherwise.
func KeyForConversation(conv *RemoteConversation) ConversationKey {
	if conv.ID != "" {
		return CanonicalKey(conv.ID)
	}
	return SyntheticKey(conv.ParticipantIDs...)
}
